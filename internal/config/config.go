// Package config holds the harness settings: where the Perforce server and
// the merge service live, where workspaces go, and how long to wait for the
// service to settle.
//
// Values come from defaults, an optional mergewatch.yaml, and environment
// variables, in increasing precedence. Environment variables use the
// MERGEWATCH_ prefix with dots replaced by underscores; the names the
// functional-test containers set (WORKSPACES_ROOT, ROBOMERGE_DOMAIN, P4PORT)
// are honoured as well.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key's environment variable.
const EnvPrefix = "MERGEWATCH"

// Service ports in the functional-test environment.
const (
	ServicePort      = 8877
	NotificationPort = 8811
)

var v *viper.Viper

// legacyEnv maps keys to extra environment variables checked after the
// prefixed one.
var legacyEnv = map[string]string{
	"workspaces_root":  "WORKSPACES_ROOT",
	"robomerge.domain": "ROBOMERGE_DOMAIN",
	"p4.port":          "P4PORT",
}

// Initialize loads configuration. An empty configFile searches the working
// directory and the user config directory for mergewatch.yaml; a missing
// file is not an error unless it was named explicitly.
func Initialize(configFile string) error {
	v = viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, envName(key), env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("mergewatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "mergewatch"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workspaces_root", "/rm_tests/")
	v.SetDefault("robomerge.domain", "robomerge_functtest")
	v.SetDefault("robomerge.url", "")
	v.SetDefault("notification.url", "")
	v.SetDefault("bot", "FUNCTIONALTEST")
	v.SetDefault("p4.port", "perforce:1666")
	v.SetDefault("p4.binary", "p4")
	v.SetDefault("poll.attempts", 15)
	v.SetDefault("poll.initial_interval", 500*time.Millisecond)
	v.SetDefault("poll.multiplier", 1.2)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// ResetForTesting drops loaded configuration so the next Initialize starts
// clean.
func ResetForTesting() {
	v = nil
}

func instance() *viper.Viper {
	if v == nil {
		v = viper.New()
		setDefaults(v)
	}
	return v
}

// Set overrides key for the rest of the process (flag values, tests).
func Set(key string, value any) { instance().Set(key, value) }

// GetString returns the string value of key.
func GetString(key string) string { return instance().GetString(key) }

// GetBool returns the boolean value of key.
func GetBool(key string) bool { return instance().GetBool(key) }

// GetInt returns the integer value of key.
func GetInt(key string) int { return instance().GetInt(key) }

// GetFloat64 returns the float value of key.
func GetFloat64(key string) float64 { return instance().GetFloat64(key) }

// GetDuration returns the duration value of key.
func GetDuration(key string) time.Duration { return instance().GetDuration(key) }

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string { return instance().ConfigFileUsed() }

// Settings is a typed snapshot of the configuration.
type Settings struct {
	WorkspacesRoot  string
	Domain          string
	ServiceURL      string
	NotificationURL string
	Bot             string
	P4Port          string
	P4Binary        string
	Attempts        int
	InitialInterval time.Duration
	Multiplier      float64
	HTTPTimeout     time.Duration
	LogLevel        string
	Color           bool
}

// Load returns the current settings. Explicit service URLs win over the
// ones derived from the domain.
func Load() Settings {
	s := Settings{
		WorkspacesRoot:  GetString("workspaces_root"),
		Domain:          GetString("robomerge.domain"),
		ServiceURL:      GetString("robomerge.url"),
		NotificationURL: GetString("notification.url"),
		Bot:             GetString("bot"),
		P4Port:          GetString("p4.port"),
		P4Binary:        GetString("p4.binary"),
		Attempts:        GetInt("poll.attempts"),
		InitialInterval: GetDuration("poll.initial_interval"),
		Multiplier:      GetFloat64("poll.multiplier"),
		HTTPTimeout:     GetDuration("http.timeout"),
		LogLevel:        GetString("log.level"),
		Color:           GetBool("log.color"),
	}
	if s.ServiceURL == "" {
		s.ServiceURL = fmt.Sprintf("http://%s:%d", s.Domain, ServicePort)
	}
	if s.NotificationURL == "" {
		s.NotificationURL = fmt.Sprintf("http://%s:%d", s.Domain, NotificationPort)
	}
	return s
}
