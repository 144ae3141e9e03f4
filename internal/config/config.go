// Package config loads named connection profiles for the ftpclient
// command line tool.
//
// Profiles live in a YAML or TOML file:
//
//	default: mirror
//	profiles:
//	  mirror:
//	    url: ftp://ftp.example.com/
//	    mode: passive
//	  backup:
//	    host: backup.example.com
//	    username: bob
//	    password: secret
//	    tls: full
//	    timeout: 2m
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FTPCLIENT_*), e.g. FTPCLIENT_PASSWORD
//  2. The selected profile
//  3. ftpclient.DefaultConfig
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/gonzalop/ftpclient"
)

// EnvPrefix is the prefix of environment variables overriding profile keys.
const EnvPrefix = "FTPCLIENT"

// Profile is one named server entry.
type Profile struct {
	// Name is the profile name, empty when only defaults and the
	// environment were used
	Name string `mapstructure:"-"`

	// URL is an ftp://, ftps:// or ftp+explicit:// URL. When set, its
	// host, port, TLS scheme and credentials win over the fields below.
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	Mode        string `mapstructure:"mode"`
	TLS         string `mapstructure:"tls"`
	ImplicitTLS bool   `mapstructure:"implicit_tls"`
	VerifyCert  bool   `mapstructure:"verify_cert"`

	Timeout        time.Duration `mapstructure:"timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	Verbose        bool   `mapstructure:"verbose"`
	DisableEPSV    bool   `mapstructure:"disable_epsv"`
	ActiveAddr     string `mapstructure:"active_addr"`
	BufferSize     int    `mapstructure:"buffer_size"`
	MaxListSize    int64  `mapstructure:"max_list_size"`
	BandwidthLimit int64  `mapstructure:"bandwidth_limit"`

	// Proxy is a socks5:// URL for ftpclient.WithProxy
	Proxy string `mapstructure:"proxy"`
}

// keys lists every profile key so each can be bound to its environment
// variable.
var keys = []string{
	"url", "host", "port", "username", "password",
	"mode", "tls", "implicit_tls", "verify_cert",
	"timeout", "connect_timeout",
	"verbose", "disable_epsv", "active_addr",
	"buffer_size", "max_list_size", "bandwidth_limit",
	"proxy",
}

// Load reads the profile called name from the file at path. An empty path
// looks for config.yaml or config.toml in DefaultDir and carries on with
// defaults if there is none. An empty name selects the file's "default"
// entry, or no profile at all.
func Load(path, name string) (*Profile, error) {
	file := viper.New()
	if err := readFile(file, path); err != nil {
		return nil, err
	}

	if name == "" {
		name = file.GetString("default")
	}

	v := viper.New()
	setDefaults(v)

	if name != "" {
		sub := file.Sub("profiles." + strings.ToLower(name))
		if sub == nil {
			return nil, fmt.Errorf("profile %q not found", name)
		}
		if err := v.MergeConfigMap(sub.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to load profile %q: %w", name, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	p.Name = name
	return &p, nil
}

func setDefaults(v *viper.Viper) {
	d := ftpclient.DefaultConfig()
	v.SetDefault("port", d.Port)
	v.SetDefault("username", d.Username)
	v.SetDefault("password", d.Password)
	v.SetDefault("mode", d.Mode.String())
	v.SetDefault("tls", d.TLS.String())
	v.SetDefault("verify_cert", d.VerifyCert)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("buffer_size", d.BufferSize)
	v.SetDefault("max_list_size", d.MaxListSize)
}

// readFile reads the profile file if there is one.
func readFile(v *viper.Viper, path string) error {
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", path, err)
		}
		v.SetConfigFile(expanded)
	} else {
		dir, err := DefaultDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// DefaultDir returns $XDG_CONFIG_HOME/ftpclient, or ~/.config/ftpclient.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ftpclient"), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ftpclient"), nil
}

// Config converts the profile into a validated ftpclient.Config.
func (p *Profile) Config() (ftpclient.Config, error) {
	cfg := ftpclient.DefaultConfig()

	mode, err := ftpclient.ParseMode(p.Mode)
	if err != nil {
		return cfg, err
	}
	tlsMode, err := ftpclient.ParseTLSMode(p.TLS)
	if err != nil {
		return cfg, err
	}

	cfg.Host = p.Host
	cfg.Port = p.Port
	cfg.Username = p.Username
	cfg.Password = p.Password
	cfg.Mode = mode
	cfg.TLS = tlsMode
	cfg.ImplicitTLS = p.ImplicitTLS
	cfg.VerifyCert = p.VerifyCert
	cfg.Timeout = p.Timeout
	cfg.ConnectTimeout = p.ConnectTimeout
	cfg.Verbose = p.Verbose
	cfg.DisableEPSV = p.DisableEPSV
	cfg.ActiveAddr = p.ActiveAddr
	cfg.BufferSize = p.BufferSize
	cfg.MaxListSize = p.MaxListSize
	cfg.BandwidthLimit = p.BandwidthLimit

	if p.URL != "" {
		if err := applyURL(&cfg, p.URL); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return cfg, nil
}

func applyURL(cfg *ftpclient.Config, raw string) error {
	fromURL, _, err := ftpclient.ParseURL(raw)
	if err != nil {
		return err
	}
	cfg.Host = fromURL.Host
	cfg.Port = fromURL.Port
	if fromURL.TLS != ftpclient.TLSNone {
		cfg.TLS = fromURL.TLS
		cfg.ImplicitTLS = fromURL.ImplicitTLS
	}

	u, err := url.Parse(raw)
	if err == nil && u.User != nil && u.User.Username() != "" {
		cfg.Username = fromURL.Username
		cfg.Password = fromURL.Password
	}
	return nil
}
