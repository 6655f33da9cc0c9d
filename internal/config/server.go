package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Server holds the server binary's YAML configuration (spec §6.2's
// `--config <file>`), loaded through viper the way dittofs loads its
// server config.
type Server struct {
	Port       int    `mapstructure:"port"`
	Background bool   `mapstructure:"background"`
	Inetd      bool   `mapstructure:"inetd"`
	PasswdFile string `mapstructure:"passwdfile"`
	AuthFile   string `mapstructure:"authfile"`

	TLS struct {
		Enabled  bool   `mapstructure:"enabled"`
		CAFile   string `mapstructure:"ca_file"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`

	Encoding struct {
		Preferred []string `mapstructure:"preferred"`
		Blacklist []string `mapstructure:"blacklist"`
		Workers   int      `mapstructure:"workers"`
	} `mapstructure:"encoding"`

	Xauthority struct {
		BaseDir string `mapstructure:"base_dir"`
		Group   string `mapstructure:"group"`
	} `mapstructure:"xauthority"`

	Metrics struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"metrics"`
}

// DefaultServerConfig returns the baked-in defaults a server runs with
// when no `--config` file is given.
func DefaultServerConfig() Server {
	return defaultServer()
}

// defaultServer returns the baked-in defaults, applied before the config
// file is read so a file only needs to mention what it overrides.
func defaultServer() Server {
	s := Server{
		Port:       5900,
		PasswdFile: "/etc/ltsm/passwd",
		AuthFile:   "/etc/ltsm/authfile",
	}
	s.Encoding.Workers = 2
	s.Xauthority.BaseDir = "/run/ltsm/sessions"
	s.Xauthority.Group = "auth"
	s.Metrics.Listen = ":9119"
	return s
}

// LoadServerConfig reads a YAML file at path via viper into a Server,
// layered on top of defaultServer.
func LoadServerConfig(path string) (*Server, error) {
	cfg := defaultServer()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &cfg, nil
}
