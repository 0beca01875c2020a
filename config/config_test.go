package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/buylist/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Aggregator.Workers)
	assert.Equal(t, 15*time.Second, cfg.Aggregator.Deadline)
	assert.Equal(t, 6*time.Hour, cfg.Aggregator.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Cache.Freshness)
	assert.Equal(t, 6*time.Hour, cfg.Cache.MarketTTL)
	assert.Equal(t, 12*time.Hour, cfg.Cache.RecommendationsTTL)
	assert.Equal(t, 90, cfg.History.RetentionDays)
	assert.Equal(t, 7, cfg.History.WindowDays)
	assert.InDelta(t, 0.7, cfg.Hot.ScoreThreshold, 1e-9)
	assert.InDelta(t, -15, cfg.Recommend.BuyBelowPercent, 1e-9)
	assert.Equal(t, "buylist.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Sources.Scryfall.Enabled)
}

func TestParse_YAMLValues(t *testing.T) {
	data := []byte(`
aggregator:
  workers: 8
  deadline: 5s
cache:
  freshness: 12h
sources:
  static:
    - name: Card Kingdom
      quotes:
        - name: Lightning Bolt
          set: Magic 2010
          foil: foil
          bid: "1.25"
          offer: "3.99"
          quantity_limit: 20
  scryfall:
    enabled: true
log:
  level: debug
`)
	cfg, err := config.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Aggregator.Workers)
	assert.Equal(t, 5*time.Second, cfg.Aggregator.Deadline)
	assert.Equal(t, 12*time.Hour, cfg.Cache.Freshness)
	require.Len(t, cfg.Sources.Static, 1)
	q := cfg.Sources.Static[0].Quotes[0]
	assert.Equal(t, "Lightning Bolt", q.Card.Name)
	assert.True(t, q.Card.IsFoil())
	assert.Equal(t, "1.25", q.Bid)
	assert.Equal(t, 20, q.QuantityLimit)
	assert.True(t, cfg.Sources.Scryfall.Enabled)
	assert.Equal(t, "https://api.scryfall.com", cfg.Sources.Scryfall.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad log level", "log:\n  level: verbose\n"},
		{"static quote without set", "sources:\n  static:\n    - name: X\n      quotes:\n        - name: Bolt\n          bid: \"1\"\n"},
		{"non numeric bid", "sources:\n  static:\n    - name: X\n      quotes:\n        - name: Bolt\n          set: M10\n          bid: cheap\n"},
		{"static source without name", "sources:\n  static:\n    - quotes: []\n"},
		{"price type without price", "sources:\n  static:\n    - name: X\n      quotes:\n        - name: Bolt\n          set: M10\n          price_type: buylist\n"},
		{"malformed yaml", "aggregator: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  dsn: file.db\n"), 0o600))

	t.Setenv("BUYLIST_DSN", ":memory:")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
