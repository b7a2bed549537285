package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/payment"
	"go.uber.org/zap"
)

const reconcileBatch = 100

type ReconcilerSettings struct {
	Interval     time.Duration
	Grace        time.Duration // markers younger than this may still be booked by the client
	AbandonAfter time.Duration
}

// Reconciler books paid intents whose booking call never arrived and closes
// out intents that will never be paid. It only reads processor state.
type Reconciler struct {
	svc      *Service
	settings ReconcilerSettings
	log      *zap.Logger
}

func NewReconciler(svc *Service, settings ReconcilerSettings, log *zap.Logger) *Reconciler {
	return &Reconciler{svc: svc, settings: settings, log: log}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.settings.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce makes a single pass over stale pending markers and returns how many were booked.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	now := r.svc.now()
	pending, err := r.svc.store.ListPendingPayments(ctx, now.Add(-r.settings.Grace), reconcileBatch)
	if err != nil {
		r.log.Error("failed to list pending payments", zap.Error(err))
		return 0
	}

	booked := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return booked
		}
		if r.reconcile(ctx, p, now) {
			booked++
		}
	}
	return booked
}

func (r *Reconciler) reconcile(ctx context.Context, p *domain.PendingPayment, now time.Time) bool {
	log := r.log.With(zap.String("payment_intent_id", p.PaymentIntentID), zap.String("user", p.UserEmail))

	intent, err := r.svc.processor.GetIntent(ctx, p.PaymentIntentID)
	switch {
	case errors.Is(err, payment.ErrIntentNotFound):
		r.mark(ctx, log, p, domain.PendingAbandoned, "intent not found at processor")
		return false
	case err != nil:
		r.mark(ctx, log, p, domain.PendingAwaitingBooking, err.Error())
		return false
	}

	switch {
	case intent.Status == payment.StatusSucceeded:
		buyer := domain.Buyer{Email: p.UserEmail, Name: p.UserName}
		if _, err := r.svc.book(ctx, p.PaymentIntentID, p.Items, buyer); err != nil {
			r.mark(ctx, log, p, domain.PendingAwaitingBooking, err.Error())
			return false
		}
		log.Warn("reconciled paid intent without booking")
		return true
	case intent.Status == payment.StatusCanceled:
		r.mark(ctx, log, p, domain.PendingAbandoned, "intent canceled")
	case now.Sub(p.CreatedAt) > r.settings.AbandonAfter:
		r.mark(ctx, log, p, domain.PendingAbandoned, "unpaid after "+r.settings.AbandonAfter.String())
	default:
		r.mark(ctx, log, p, domain.PendingAwaitingBooking, "intent "+string(intent.Status))
	}
	return false
}

func (r *Reconciler) mark(ctx context.Context, log *zap.Logger, p *domain.PendingPayment, status domain.PendingStatus, reason string) {
	if err := r.svc.store.MarkPendingPayment(ctx, p.PaymentIntentID, status, reason); err != nil {
		log.Error("failed to update pending payment", zap.Error(err))
		return
	}
	if status == domain.PendingAbandoned {
		log.Info("pending payment abandoned", zap.String("reason", reason))
	}
}
