package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/config"
)

func TestNewWorker_Requirements(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"no redis", map[string]string{"REDIS_ADDR": ""}, "REDIS_ADDR"},
		{"memory store", map[string]string{"REDIS_ADDR": "localhost:6379", "STORE_DRIVER": "memory"}, "memory store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := config.Load("")
			require.NoError(t, err)

			_, _, err = newWorker(context.Background(), cfg, zerolog.Nop())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewWorker_SharedSQLiteStore(t *testing.T) {
	// GIVEN: A sqlite file and a redis address (asynq connects lazily)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "stock.db"))
	cfg, err := config.Load("")
	require.NoError(t, err)

	// WHEN
	worker, closeStore, err := newWorker(context.Background(), cfg, zerolog.Nop())

	// THEN
	require.NoError(t, err)
	assert.NotNil(t, worker)
	assert.NoError(t, closeStore())
}
