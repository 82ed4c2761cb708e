package orm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tokmz/marquee/pkg/logger"
)

type party struct {
	ID    string `gorm:"primaryKey"`
	Title string
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "no dsn", mutate: func(c *Config) { c.DSN = "" }, wantErr: "dsn is required"},
		{name: "unknown type", mutate: func(c *Config) { c.Type = "oracle" }, wantErr: "unsupported database type"},
		{name: "empty replicas", mutate: func(c *Config) { c.ReadWriteSplit = &ReadWriteSplitConfig{} }, wantErr: "no sources"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]int{"silent": 1, "ERROR": 2, "warn": 3, "info": 4, "": 3} {
		assert.Equal(t, want, int(parseLevel(in)), in)
	}
}

func TestNewSQLiteWithTracingAndLogging(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	core, logs := observer.New(zap.DebugLevel)
	cfg := DefaultConfig()
	cfg.DSN = "file::memory:?cache=shared"
	cfg.MaxOpenConns = 1
	cfg.SlowThreshold = time.Nanosecond

	db, err := New(cfg, logger.FromZap(zap.New(core)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).AutoMigrate(&party{}))
	require.NoError(t, db.WithContext(ctx).Create(&party{ID: "p1", Title: "Heat"}).Error)

	var got party
	require.NoError(t, db.WithContext(ctx).First(&got, "id = ?", "p1").Error)
	assert.Equal(t, "Heat", got.Title)

	names := map[string]bool{}
	for _, s := range sr.Ended() {
		names[s.Name()] = true
	}
	assert.True(t, names["gorm.create"])
	assert.True(t, names["gorm.query"])

	assert.NotZero(t, logs.FilterMessage("gorm slow query").Len())
	assert.Equal(t, "gorm", logs.All()[0].ContextMap()["component"])
}
