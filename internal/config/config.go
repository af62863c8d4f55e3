package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	ZeroTrust   ZeroTrustConfig `mapstructure:"zerotrust"`
	Detection   DetectionConfig `mapstructure:"detection"`
	Response    ResponseConfig  `mapstructure:"response"`
	Analytics   AnalyticsConfig `mapstructure:"analytics"`
	Crypto      CryptoConfig    `mapstructure:"crypto"`
	Events      EventsConfig    `mapstructure:"events"`
	Archive     ArchiveConfig   `mapstructure:"archive"`
	Audit       AuditConfig     `mapstructure:"audit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ZeroTrustConfig contains policy engine settings
type ZeroTrustConfig struct {
	ContinuousAuthInterval time.Duration      `mapstructure:"continuous_auth_interval"`
	VerifiedThreshold      float64            `mapstructure:"verified_threshold"`
	MFAThreshold           float64            `mapstructure:"mfa_threshold"`
	DeviceTrustScore       float64            `mapstructure:"device_trust_score"`
	FactorWeights          map[string]float64 `mapstructure:"factor_weights"`
	JWTSecret              string             `mapstructure:"jwt_secret"`
	JWTIssuer              string             `mapstructure:"jwt_issuer"`
}

// DetectionConfig contains threat detector settings
type DetectionConfig struct {
	AnomalyThreshold float64 `mapstructure:"anomaly_threshold"`
	ThreatThreshold  float64 `mapstructure:"threat_threshold"`
}

// ResponseConfig contains response engine settings
type ResponseConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
}

// AnalyticsConfig contains posture aggregator settings
type AnalyticsConfig struct {
	BaseScore     float64       `mapstructure:"base_score"`
	RollingWindow time.Duration `mapstructure:"rolling_window"`
}

// CryptoConfig contains crypto provider settings
type CryptoConfig struct {
	Algorithm  string `mapstructure:"algorithm"`
	HybridMode bool   `mapstructure:"hybrid_mode"`
}

// EventsConfig contains the optional redis event publisher settings
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// ArchiveConfig contains the optional postgres mirror store settings
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// AuditConfig contains audit trail settings
type AuditConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
	Retention  int `mapstructure:"retention"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the given file path with environment
// variable overrides. A missing file is not fatal; defaults apply.
func Load(configPath string) (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("ORCHESTRATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.ZeroTrust.ContinuousAuthInterval <= 0 {
		return fmt.Errorf("continuous auth interval must be positive")
	}
	if c.Detection.AnomalyThreshold < 0 || c.Detection.AnomalyThreshold >= 1 {
		return fmt.Errorf("anomaly threshold must be in [0,1): %f", c.Detection.AnomalyThreshold)
	}
	if c.ZeroTrust.VerifiedThreshold > c.ZeroTrust.MFAThreshold {
		return fmt.Errorf("verified threshold cannot exceed mfa threshold")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("archive enabled but no dsn configured")
	}
	if c.Events.Enabled && c.Events.Addr == "" {
		return fmt.Errorf("events enabled but no redis address configured")
	}
	return nil
}

// Default returns the default configuration without reading any file
func Default() *Config {
	setDefaults()
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults() {
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("zerotrust.continuous_auth_interval", "300s")
	viper.SetDefault("zerotrust.verified_threshold", 0.75)
	viper.SetDefault("zerotrust.mfa_threshold", 0.90)
	viper.SetDefault("zerotrust.device_trust_score", 0.85)
	viper.SetDefault("zerotrust.jwt_issuer", "security-orchestrator")

	viper.SetDefault("detection.anomaly_threshold", 0.75)
	viper.SetDefault("detection.threat_threshold", 0.85)

	viper.SetDefault("response.history_limit", 1000)

	viper.SetDefault("analytics.base_score", 85.0)
	viper.SetDefault("analytics.rolling_window", "24h")

	viper.SetDefault("crypto.algorithm", "hybrid-xchacha20")
	viper.SetDefault("crypto.hybrid_mode", true)

	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.addr", "localhost:6379")
	viper.SetDefault("events.db", 0)
	viper.SetDefault("events.channel", "security.events")

	viper.SetDefault("archive.enabled", false)

	viper.SetDefault("audit.buffer_size", 256)
	viper.SetDefault("audit.retention", 10000)

	viper.SetDefault("logging.level", "info")
}
