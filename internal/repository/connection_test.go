package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_tickets/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptions_FromConfig(t *testing.T) {
	opts := clientOptions(config.Mongo{
		URI:                    "mongodb://localhost:27017",
		Database:               "ticketing",
		ConnectTimeout:         3 * time.Second,
		ServerSelectionTimeout: 2 * time.Second,
		MaxPoolSize:            20,
		MinPoolSize:            2,
	})

	require.NotNil(t, opts.ConnectTimeout)
	assert.Equal(t, 3*time.Second, *opts.ConnectTimeout)
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, 2*time.Second, *opts.ServerSelectionTimeout)
	require.NotNil(t, opts.MaxPoolSize)
	assert.Equal(t, uint64(20), *opts.MaxPoolSize)
	require.NotNil(t, opts.MinPoolSize)
	assert.Equal(t, uint64(2), *opts.MinPoolSize)
	require.NotNil(t, opts.AppName)
	assert.Equal(t, appName, *opts.AppName)
	require.NotNil(t, opts.RetryWrites)
	assert.True(t, *opts.RetryWrites)
}

func TestClientOptions_ZeroValuesKeepDriverDefaults(t *testing.T) {
	opts := clientOptions(config.Mongo{URI: "mongodb://localhost:27017"})
	assert.Nil(t, opts.MaxPoolSize)
	assert.Nil(t, opts.MinPoolSize)
	assert.Nil(t, opts.ConnectTimeout)
}

func TestConnectMongoDB_RequiresDatabase(t *testing.T) {
	_, err := ConnectMongoDB(context.Background(), config.Mongo{URI: "mongodb://localhost:27017"})
	assert.ErrorContains(t, err, "database name is required")
}
