// Package config loads the user configuration file and the OTS_ environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const (
	// FileName is the configuration file inside the config directory
	FileName = "config.json"

	// DefaultFilestore is the ledger database file used when none is configured
	DefaultFilestore = "ots.db"
)

// Config is the content of config.json
type Config struct {
	OdooHostname string `mapstructure:"odoo_hostname"`
	OdooLogin    string `mapstructure:"odoo_login"`
	OdooPort     int    `mapstructure:"odoo_port"`
	OdooDB       string `mapstructure:"odoo_db"`
	SSL          bool   `mapstructure:"ssl"`
	Filestore    string `mapstructure:"filestore"`
	AutoSync     bool   `mapstructure:"auto_sync"`
}

// Default returns the configuration used before setup or login wrote one
func Default() *Config {
	return &Config{
		SSL:       true,
		Filestore: DefaultFilestore,
	}
}

// Env holds settings read from OTS_ prefixed environment variables
type Env struct {
	// Home overrides the config directory (~/.ots)
	Home          string        `envconfig:"HOME"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"warn"`
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"60s"`
}

// LoadEnv reads the OTS_ environment
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process("OTS", &env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &env, nil
}

// Dir resolves the config directory: the explicit flag value, then OTS_HOME, then ~/.ots
func Dir(flag string, env *Env) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env != nil && env.Home != "" {
		return env.Home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".ots"), nil
}

// Load reads dir/config.json. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if cfg.Filestore == "" {
		cfg.Filestore = DefaultFilestore
	}
	return cfg, nil
}

// Save writes cfg to dir/config.json, creating dir when needed
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set("odoo_hostname", cfg.OdooHostname)
	v.Set("odoo_login", cfg.OdooLogin)
	v.Set("odoo_port", cfg.OdooPort)
	v.Set("odoo_db", cfg.OdooDB)
	v.Set("ssl", cfg.SSL)
	v.Set("filestore", cfg.Filestore)
	v.Set("auto_sync", cfg.AutoSync)

	path := filepath.Join(dir, FileName)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// DatabasePath is the ledger database file for cfg inside dir
func (c *Config) DatabasePath(dir string) string {
	name := c.Filestore
	if name == "" {
		name = DefaultFilestore
	}
	if !strings.HasSuffix(name, ".db") {
		name += ".db"
	}
	return filepath.Join(dir, name)
}

// Protocol is the remote protocol implied by the ssl setting
func (c *Config) Protocol() string {
	if c.SSL {
		return "jsonrpc+ssl"
	}
	return "jsonrpc"
}

// Port returns the configured port, or the default port for the protocol
func (c *Config) Port() int {
	if c.OdooPort != 0 {
		return c.OdooPort
	}
	if c.SSL {
		return 443
	}
	return 80
}
