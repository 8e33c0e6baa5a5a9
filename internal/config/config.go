package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store     StoreConfig     `yaml:"store"`
	NATS      NATSConfig      `yaml:"nats"`
	Web       WebConfig       `yaml:"web"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Vault     VaultConfig     `yaml:"vault"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Notify    NotifyConfig    `yaml:"notify"`
	Defaults  DefaultsConfig  `yaml:"defaults"`

	Providers map[string]ProviderConfig `yaml:"providers"`
	Agents    map[string]AgentConfig    `yaml:"agents"`
	Flocks    map[string]FlockConfig    `yaml:"flocks"`
	Swarms    map[string]SwarmConfig    `yaml:"swarms"`
	Params    map[string]ParamsConfig   `yaml:"params"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Port int `yaml:"port"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

type PricingConfig struct {
	Path string `yaml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Email    string         `yaml:"email"` // default destination for the email action
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type DefaultsConfig struct {
	ExportDir string `yaml:"export_dir"`
	Params    string `yaml:"params"`
}

// ProviderConfig declares one upstream AI vendor endpoint. Kind selects the
// wire adapter: "openai", "anthropic", or "openai-compatible".
type ProviderConfig struct {
	Kind     string `yaml:"kind"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"` // default model for anonymous units
	Params   string `yaml:"params"`
	Disabled bool   `yaml:"disabled"`
}

type AgentConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	Endpoint    string `yaml:"endpoint"`
	Params      string `yaml:"params"`
}

type FlockConfig struct {
	Name   string   `yaml:"name"`
	Agents []string `yaml:"agents"`
	Params string   `yaml:"params"`
}

type SwarmConfig struct {
	Name    string        `yaml:"name"`
	Members []SwarmMember `yaml:"members"`
}

type SwarmMember struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type ParamsConfig struct {
	Temperature  *float64 `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt"`
}

func defaults() Config {
	return Config{
		Store: StoreConfig{
			Path: "data/aviary.db",
		},
		NATS: NATSConfig{
			Port: 4222,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		Defaults: DefaultsConfig{
			ExportDir: "data/exports",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("AVIARY_CONFIG")
	if path == "" {
		path = "config/aviary.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AVIARY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("AVIARY_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("AVIARY_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("AVIARY_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("AVIARY_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
	if v := os.Getenv("AVIARY_TELEGRAM_TOKEN"); v != "" {
		cfg.Notify.Telegram.Token = v
	}
	if v := os.Getenv("AVIARY_SMTP_PASSWORD"); v != "" {
		cfg.Notify.SMTP.Password = v
	}

	// Vendor keys: fill providers of the matching kind that carry no key
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		fillProviderKey(cfg, "openai", v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		fillProviderKey(cfg, "anthropic", v)
	}
}

func fillProviderKey(cfg *Config, kind, key string) {
	for name, p := range cfg.Providers {
		if p.Kind == kind && p.APIKey == "" {
			p.APIKey = key
			cfg.Providers[name] = p
		}
	}
}
