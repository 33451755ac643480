package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/t77yq/outbreak-sentinel/internal/detection"
	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// Config is the service configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// AppConfig holds general application settings
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	URLs           []string      `mapstructure:"urls"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// EngineConfig holds detection engine settings
type EngineConfig struct {
	Workers          int                       `mapstructure:"workers"`
	RulesFile        string                    `mapstructure:"rules_file"`
	MessageTemplates map[string]string         `mapstructure:"message_templates"`
	Recommendations  detection.Recommendations `mapstructure:"recommendations"`
}

// ScheduleConfig holds cron expressions for periodic jobs
type ScheduleConfig struct {
	Evaluation string `mapstructure:"evaluation"`
	Cleanup    string `mapstructure:"cleanup"`
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Addr            string        `mapstructure:"addr"`
	CollectInterval time.Duration `mapstructure:"collect_interval"`
}

// NotifyConfig holds alert notification settings
type NotifyConfig struct {
	MinSeverity model.AlertSeverity `mapstructure:"min_severity"`
	Email       EmailConfig         `mapstructure:"email"`
}

// EmailConfig holds SMTP settings. Email is disabled when Host is empty.
type EmailConfig struct {
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
}

// setDefaults registers default values on v
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "outbreak-sentinel")
	v.SetDefault("app.env", "development")

	v.SetDefault("nats.urls", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("storage.path", "sentinel.db")
	v.SetDefault("storage.retention", 30*24*time.Hour)

	v.SetDefault("engine.workers", 0)

	v.SetDefault("schedule.evaluation", "0 */15 * * * *")
	v.SetDefault("schedule.cleanup", "0 0 3 * * *")

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.collect_interval", 30*time.Second)

	v.SetDefault("notify.min_severity", string(model.AlertSeverityHigh))
	v.SetDefault("notify.email.port", 587)
}

// Load reads configuration from the given file (if any) and the environment.
// Environment variables use the SENTINEL_ prefix, e.g. SENTINEL_NATS_URLS.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ruleFile is the on-disk layout of a rules file
type ruleFile struct {
	Rules []model.Rule `yaml:"rules"`
}

// LoadRules reads a YAML rules file. An empty path yields the built-in rules.
func LoadRules(path string) ([]model.Rule, error) {
	if path == "" {
		return detection.DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	for i, rule := range file.Rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d in %s has no id", i, path)
		}
	}

	return file.Rules, nil
}

// Templates returns the built-in message templates overlaid with configured ones
func (c EngineConfig) Templates() detection.MessageTemplates {
	templates := detection.DefaultMessageTemplates()
	for id, tmpl := range c.MessageTemplates {
		templates[id] = tmpl
	}
	return templates
}

// RecommendationTable returns the built-in recommendations overlaid with configured ones
func (c EngineConfig) RecommendationTable() detection.Recommendations {
	return detection.DefaultRecommendations().Merge(c.Recommendations)
}
