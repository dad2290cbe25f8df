package config

import (
	"errors"
	"fmt"

	"schulmanager-online/internal/components/chrono"
	"schulmanager-online/lib/configutil"
)

const (
	EnvToken        = "SCHULMANAGER_TOKEN"
	EnvUsername     = "SCHULMANAGER_USERNAME"
	EnvPassword     = "SCHULMANAGER_PASSWORD"
	EnvSmtpPassword = "SCHULMANAGER_SMTP_PASSWORD"
)

const (
	// DefaultPort is where the sensor service listens when no port is given.
	DefaultPort     = 8123
	DefaultSmtpPort = 587
)

type Scraping struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	// ExecPath points to a chrome or chromium binary, empty means the one on PATH.
	ExecPath string `json:"exec_path" yaml:"exec_path"`
}

type Listen struct {
	Port        int    `json:"port" yaml:"port"`
	AccessToken string `json:"access_token" yaml:"access_token"`
}

// Notify mails newly arrived letters to the listed recipients, it is
// disabled while To is empty.
type Notify struct {
	Server       string   `json:"server" yaml:"server"`
	Port         int      `json:"port" yaml:"port"`
	EmailAddress string   `json:"email_address" yaml:"email_address"`
	Password     string   `json:"password" yaml:"password"`
	To           []string `json:"to" yaml:"to"`
}

func (n Notify) Enabled() bool {
	return len(n.To) > 0
}

type Config struct {
	Token    string   `json:"token" yaml:"token"`
	Scraping Scraping `json:"scraping" yaml:"scraping"`
	// Database is a sqlite path, a libsql:// url or a postgres:// url. Empty
	// disables the refresh log.
	Database string `json:"database" yaml:"database"`
	Listen   Listen `json:"listen" yaml:"listen"`
	Timezone string `json:"timezone" yaml:"timezone"`
	Notify   Notify `json:"notify" yaml:"notify"`
}

var (
	ErrMissingToken       = errors.New("token is required")
	ErrMissingCredentials = errors.New("scraping requires username and password")
	ErrMissingSmtp        = errors.New("notify requires an smtp server and sender address")
)

// Read loads the config file at path (and its .local override), applies the
// environment overrides and fills in defaults.
func Read(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) ApplyEnv() {
	configutil.OverrideFromEnv(&c.Token, EnvToken)
	configutil.OverrideFromEnv(&c.Scraping.Username, EnvUsername)
	configutil.OverrideFromEnv(&c.Scraping.Password, EnvPassword)
	configutil.OverrideFromEnv(&c.Notify.Password, EnvSmtpPassword)
}

func (c *Config) ApplyDefaults() {
	if c.Timezone == "" {
		c.Timezone = chrono.DefaultLocation
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = DefaultPort
	}
	if c.Notify.Port == 0 {
		c.Notify.Port = DefaultSmtpPort
	}
}

func (c Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.Scraping.Enabled && (c.Scraping.Username == "" || c.Scraping.Password == "") {
		return ErrMissingCredentials
	}
	if c.Notify.Enabled() && (c.Notify.Server == "" || c.Notify.EmailAddress == "") {
		return ErrMissingSmtp
	}
	return nil
}
