package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		name string
		v    int
		want string
	}{
		{name: "success", v: 10, want: ""},
		{name: "success upper bound", v: 94, want: ""},
		{name: "unknown reason", v: 95, want: DeclineCardDeclined},
		{name: "insufficient funds", v: 97, want: DeclineInsufficientFunds},
		{name: "processing error", v: 100, want: DeclineProcessingError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeFor(tt.v))
		})
	}
}

func TestFakeProcessor_ConfirmSucceeds(t *testing.T) {
	ctx := context.Background()
	f := NewFakeProcessor(nil)

	in, err := f.CreateIntent(ctx, IntentParams{Amount: 5000, Currency: "usd", Metadata: map[string]string{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresPaymentMethod, in.Status)
	assert.Contains(t, in.ClientSecret, in.ID+"_secret_")

	confirmed, err := f.ConfirmCardPayment(ctx, in.ClientSecret, Card{Number: "4242 4242 4242 4242"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, confirmed.Status)

	got, err := f.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, int64(5000), got.Amount)
	assert.Equal(t, "v", got.Metadata["k"])
}

func TestFakeProcessor_DeclineCarriesMessage(t *testing.T) {
	ctx := context.Background()
	f := NewFakeProcessor(nil)
	in, err := f.CreateIntent(ctx, IntentParams{Amount: 100, Currency: "usd"})
	require.NoError(t, err)

	_, err = f.ConfirmCardPayment(ctx, in.ClientSecret, Card{Number: "4000000000009995"})
	require.ErrorIs(t, err, ErrDeclined)
	var de *DeclineError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DeclineInsufficientFunds, de.Code)
	assert.Equal(t, "Your card has insufficient funds.", de.Message)

	got, err := f.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresPaymentMethod, got.Status)
	assert.Equal(t, de.Message, got.LastError)
}

func TestFakeProcessor_CustomOutcome(t *testing.T) {
	ctx := context.Background()
	f := NewFakeProcessor(func(Card) string { return "do_not_honor" })
	in, err := f.CreateIntent(ctx, IntentParams{Amount: 100})
	require.NoError(t, err)

	_, err = f.ConfirmCardPayment(ctx, in.ClientSecret, Card{})
	var de *DeclineError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "Your card was declined.", de.Message)
}

func TestFakeProcessor_UnknownSecretAndIntent(t *testing.T) {
	ctx := context.Background()
	f := NewFakeProcessor(nil)

	_, err := f.ConfirmCardPayment(ctx, "pi_x_secret_y", Card{})
	require.ErrorIs(t, err, ErrIntentNotFound)
	_, err = f.GetIntent(ctx, "pi_missing")
	require.ErrorIs(t, err, ErrIntentNotFound)
	require.ErrorIs(t, f.SetStatus("pi_missing", StatusCanceled), ErrIntentNotFound)
}

func TestFakeProcessor_CanceledIntentCannotBeConfirmed(t *testing.T) {
	ctx := context.Background()
	f := NewFakeProcessor(nil)
	in, err := f.CreateIntent(ctx, IntentParams{Amount: 100})
	require.NoError(t, err)
	require.NoError(t, f.SetStatus(in.ID, StatusCanceled))

	_, err = f.ConfirmCardPayment(ctx, in.ClientSecret, Card{Number: "4242424242424242"})
	require.ErrorIs(t, err, ErrDeclined)
}

func TestFakeProcessor_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	f := NewFakeProcessor(nil)
	in, err := f.CreateIntent(ctx, IntentParams{Amount: 100, Metadata: map[string]string{"a": "1"}})
	require.NoError(t, err)

	in.Status = StatusSucceeded
	in.Metadata["a"] = "changed"

	got, err := f.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresPaymentMethod, got.Status)
	assert.Equal(t, "1", got.Metadata["a"])
}
