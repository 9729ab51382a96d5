package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del engine de sincronización.
type Config struct {
	Sync     SyncConfig      `yaml:"sync"`
	API      APIConfig       `yaml:"api"`
	Storage  StorageConfig   `yaml:"storage"`
	Log      LogConfig       `yaml:"log"`
	Accounts []AccountConfig `yaml:"accounts"`
}

// SyncConfig controla el scheduler y la política de reposicionamiento.
type SyncConfig struct {
	IntervalSeconds          int     `yaml:"interval_seconds"`
	ShutdownGraceSeconds     int     `yaml:"shutdown_grace_seconds"`
	MaxConcurrentAccounts    int     `yaml:"max_concurrent_accounts"`
	TickSize                 float64 `yaml:"tick_size"`                  // fallback si el venue no reporta tick
	RepositionThresholdCents float64 `yaml:"reposition_threshold_cents"` // default para filas sin umbral propio
	ExpiryDays               *int    `yaml:"expiry_days"`                // 0 desactiva la expiración
	MarketID                 string  `yaml:"market_id"`                  // vacío = todos los mercados
	StrictBatch              bool    `yaml:"strict_batch"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase string `yaml:"clob_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN      string `yaml:"dsn"`       // ruta al archivo SQLite, o ":memory:"
	PaperDSN string `yaml:"paper_dsn"` // ledger separado para el modo -paper
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// AccountConfig registra una cuenta. La clave privada nunca va en el YAML:
// se lee de la variable de entorno PrivateKeyEnv.
type AccountConfig struct {
	ID            string `yaml:"id"`
	Label         string `yaml:"label"`
	PrivateKeyEnv string `yaml:"private_key_env"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Interval devuelve el periodo del scheduler.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// Grace devuelve el margen para terminar un par cancel/place tras la señal de parada.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.Sync.ShutdownGraceSeconds) * time.Second
}

// ExpireAfter devuelve la edad máxima de una posición, o 0 si no expiran.
func (c *Config) ExpireAfter() time.Duration {
	if c.Sync.ExpiryDays == nil {
		return 0
	}
	return time.Duration(*c.Sync.ExpiryDays) * 24 * time.Hour
}

// TickSize devuelve el tick por defecto en decimal.
func (c *Config) TickSize() decimal.Decimal {
	return decimal.NewFromFloat(c.Sync.TickSize)
}

// ThresholdCents devuelve el umbral de reposicionamiento por defecto en decimal.
func (c *Config) ThresholdCents() decimal.Decimal {
	return decimal.NewFromFloat(c.Sync.RepositionThresholdCents)
}

// KeyEnv devuelve el mapa cuenta → variable de entorno con su clave privada.
func (c *Config) KeyEnv() map[string]string {
	m := make(map[string]string, len(c.Accounts))
	for _, a := range c.Accounts {
		m[a.ID] = a.PrivateKeyEnv
	}
	return m
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts[%d]: missing id", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("accounts[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
	}
	if c.Sync.TickSize <= 0 || c.Sync.TickSize >= 1 {
		return fmt.Errorf("sync.tick_size must be in (0, 1), got %v", c.Sync.TickSize)
	}
	if c.Sync.ExpiryDays != nil && *c.Sync.ExpiryDays < 0 {
		return fmt.Errorf("sync.expiry_days must be >= 0, got %d", *c.Sync.ExpiryDays)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PEGBOT_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("PEGBOT_CLOB_BASE"); v != "" {
		cfg.API.CLOBBase = v
	}
	if v := os.Getenv("PEGBOT_MARKET_ID"); v != "" {
		cfg.Sync.MarketID = v
	}
	if v, err := strconv.Atoi(os.Getenv("PEGBOT_INTERVAL_SECONDS")); err == nil && v > 0 {
		cfg.Sync.IntervalSeconds = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 60
	}
	if cfg.Sync.ShutdownGraceSeconds <= 0 {
		cfg.Sync.ShutdownGraceSeconds = 20
	}
	if cfg.Sync.MaxConcurrentAccounts <= 0 {
		cfg.Sync.MaxConcurrentAccounts = 8
	}
	if cfg.Sync.TickSize == 0 {
		cfg.Sync.TickSize = 0.001
	}
	if cfg.Sync.RepositionThresholdCents <= 0 {
		cfg.Sync.RepositionThresholdCents = 0.5
	}
	if cfg.Sync.ExpiryDays == nil {
		days := 5
		cfg.Sync.ExpiryDays = &days
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "pegbot.db"
	}
	if cfg.Storage.PaperDSN == "" {
		cfg.Storage.PaperDSN = "pegbot_paper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Label == "" {
			cfg.Accounts[i].Label = cfg.Accounts[i].ID
		}
	}
}
