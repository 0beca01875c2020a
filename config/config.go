package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// Config es la configuración completa del agregador.
type Config struct {
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Cache      CacheConfig      `yaml:"cache"`
	History    HistoryConfig    `yaml:"history"`
	Hot        HotConfig        `yaml:"hot"`
	Recommend  RecommendConfig  `yaml:"recommend"`
	Market     MarketConfig     `yaml:"market"`
	Sources    SourcesConfig    `yaml:"sources"`
	Collection CollectionConfig `yaml:"collection"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Journal    JournalConfig    `yaml:"journal"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Export     ExportConfig     `yaml:"export"`
	Log        LogConfig        `yaml:"log"`
}

// AggregatorConfig controla el fan-out a las fuentes y el ciclo periódico.
type AggregatorConfig struct {
	Workers  int           `yaml:"workers" default:"4" validate:"gte=1"`
	Deadline time.Duration `yaml:"deadline" default:"15s" validate:"gt=0"` // por carta, para todas las fuentes
	Interval time.Duration `yaml:"interval" default:"6h" validate:"gt=0"`
}

// CacheConfig controla la caché de precios y las TTL de las vistas.
type CacheConfig struct {
	Freshness          time.Duration `yaml:"freshness" default:"24h" validate:"gt=0"`
	MemorySize         int           `yaml:"memory_size" default:"1000" validate:"gte=1"`
	CleanupAfter       time.Duration `yaml:"cleanup_after" default:"168h"`
	DashboardTTL       time.Duration `yaml:"dashboard_ttl" default:"24h"`
	MarketTTL          time.Duration `yaml:"market_ttl" default:"6h"`
	HotTTL             time.Duration `yaml:"hot_ttl" default:"6h"`
	RecommendationsTTL time.Duration `yaml:"recommendations_ttl" default:"12h"`
}

// HistoryConfig controla la retención y las ventanas de análisis.
type HistoryConfig struct {
	RetentionDays int `yaml:"retention_days" default:"90" validate:"gte=1"`
	WindowDays    int `yaml:"window_days" default:"7" validate:"gte=1"` // ventana del detector de hot cards
}

// HotConfig expone los umbrales principales del detector de hot cards.
type HotConfig struct {
	SpikePercent   float64 `yaml:"spike_percent" default:"15" validate:"gt=0"`
	MovePercent    float64 `yaml:"move_percent" default:"5" validate:"gt=0"`
	MinPoints      int     `yaml:"min_points" default:"5" validate:"gte=2"`
	ScoreThreshold float64 `yaml:"score_threshold" default:"0.7" validate:"gte=0,lte=1"`
}

// RecommendConfig expone los umbrales principales del motor de recomendaciones.
type RecommendConfig struct {
	HistoryDays      int     `yaml:"history_days" default:"30" validate:"gte=1"`
	MaxPerAction     int     `yaml:"max_per_action" default:"20" validate:"gte=1"`
	SellAbovePercent float64 `yaml:"sell_above_percent" default:"20" validate:"gt=0"`
	BuyBelowPercent  float64 `yaml:"buy_below_percent" default:"-15" validate:"lt=0"`
}

// MarketConfig controla el análisis de mercado.
type MarketConfig struct {
	WindowDays int `yaml:"window_days" default:"30" validate:"gte=1"`
	EMAPeriod  int `yaml:"ema_period" default:"3" validate:"gte=1"`
}

// SourcesConfig lista las fuentes de cotizaciones habilitadas.
type SourcesConfig struct {
	Static   []StaticSourceConfig `yaml:"static" validate:"dive"`
	Scryfall ScryfallConfig       `yaml:"scryfall"`
}

// StaticSourceConfig es una tabla de cotizaciones fijas con nombre de vendedor.
type StaticSourceConfig struct {
	Name   string              `yaml:"name" validate:"required"`
	Quotes []StaticQuoteConfig `yaml:"quotes" validate:"dive"`
}

// StaticQuoteConfig es una fila de la tabla. Bid y Offer son importes
// decimales en USD; vacío = sin cotización de ese tipo. PriceType + Price
// admiten los tipos heredados de los scrapers ("bid_cash", "buylist",
// "offer_nm", "sell", ...), de los que se infiere el kind.
type StaticQuoteConfig struct {
	Card          domain.CardIdentity `yaml:",inline"`
	Bid           string              `yaml:"bid" validate:"omitempty,numeric"`
	Offer         string              `yaml:"offer" validate:"omitempty,numeric"`
	PriceType     string              `yaml:"price_type" validate:"required_with=Price"`
	Price         string              `yaml:"price" validate:"required_with=PriceType,omitempty,numeric"`
	Condition     string              `yaml:"condition" validate:"omitempty,oneof=NM EX GD LP PL PO"`
	QuantityLimit int                 `yaml:"quantity_limit" validate:"gte=0"`
}

// ScryfallConfig controla la fuente Scryfall.
type ScryfallConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url" default:"https://api.scryfall.com" validate:"omitempty,url"`
	RatePerSec float64       `yaml:"rate_per_sec" default:"8" validate:"gt=0"`
	Timeout    time.Duration `yaml:"timeout" default:"10s"`
	Retries    int           `yaml:"retries" default:"3" validate:"gte=0"`
}

// CollectionConfig indica dónde está la colección.
type CollectionConfig struct {
	Path string `yaml:"path" default:"collection.yaml" validate:"required"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn" default:"buylist.db"` // ruta al archivo SQLite, o ":memory:"
}

// RedisConfig habilita Redis como L2 de la caché de vistas si Addr no está vacío.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"buylist"`
}

// KafkaConfig habilita la publicación de precios si hay brokers.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" default:"buylist.prices"`
}

// JournalConfig controla el WAL de ejecuciones.
type JournalConfig struct {
	Dir         string `yaml:"dir"` // vacío = deshabilitado
	MaxSegments int    `yaml:"max_segments" default:"10" validate:"gte=1"`
}

// MetricsConfig expone /metrics si Addr no está vacío.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ExportConfig escribe un XLSX por ejecución si Path no está vacío.
type ExportConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse interpreta el YAML, aplica overrides de entorno y defaults, y valida.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: defaults: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validate: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BUYLIST_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
