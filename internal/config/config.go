// Package config loads the server's settings once at start-up into an
// immutable Config value.
//
// PRECEDENCE (lowest to highest):
//
//	defaults → config.yaml → .env file → environment → command-line flags
//
// Environment variables use the HOMELIB_ prefix (HOMELIB_PORT,
// HOMELIB_DATABASE_PATH, ...). A few well-known bare names are accepted as
// well: SECRET_KEY, DATABASE_PATH, PORT, ALLOWED_ORIGINS, DEBUG and
// ACCESS_TOKEN_EXPIRE_MINUTES.
//
// Nothing outside cmd/server reads the environment; everything downstream
// receives the values it needs from Config.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "HOMELIB"
	configFileName = "config"
	configFileType = "yaml"

	// MinSecretLength mirrors auth.MinSecretLength; config fails early with a
	// clearer message than the token service would.
	MinSecretLength = 32
)

// Keys. Flag names use the same strings with underscores turned into dashes.
const (
	KeyPort                = "port"
	KeyDatabasePath        = "database_path"
	KeySecretKey           = "secret_key"
	KeyTokenTTLMinutes     = "token_ttl_minutes"
	KeyAllowedOrigins      = "allowed_origins"
	KeyAppName             = "app_name"
	KeyDebug               = "debug"
	KeyLogLevel            = "log_level"
	KeySecureCookies       = "secure_cookies"
	KeyRegistrationEnabled = "registration_enabled"
	KeyRateLimitEnabled    = "rate_limit.enabled"
	KeyGitHubClientID      = "github.client_id"
	KeyGitHubClientSecret  = "github.client_secret"
	KeyGitHubCallbackURL   = "github.callback_url"
)

// GitHubConfig holds the optional OAuth App credentials.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Config is the fully resolved server configuration.
type Config struct {
	Port                int
	DatabasePath        string
	SecretKey           string
	TokenTTL            time.Duration
	AllowedOrigins      []string
	AppName             string
	Debug               bool
	LogLevel            slog.Level
	SecureCookies       bool
	RegistrationEnabled bool
	RateLimitEnabled    bool
	GitHub              GitHubConfig
}

// GitHubEnabled reports whether "Sign in with GitHub" should be offered.
func (c Config) GitHubEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

// Addr is the listen address for net/http.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Options tells Load where to look.
type Options struct {
	// ConfigDir is searched for config.yaml. Empty means the working directory.
	ConfigDir string
	// EnvFile is loaded into the process environment if it exists. Variables
	// already set in the environment are not overwritten.
	EnvFile string
	// Flags, when set, override every other source for flags the user passed.
	Flags *pflag.FlagSet
}

// Load resolves the configuration from all sources and validates it.
func Load(opts Options) (Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: loading %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	if opts.ConfigDir != "" {
		v.AddConfigPath(opts.ConfigDir)
	} else {
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return Config{}, err
		}
	}

	return build(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, 8000)
	v.SetDefault(KeyDatabasePath, "data/homelibrary.db")
	v.SetDefault(KeyTokenTTLMinutes, 60*24*7)
	v.SetDefault(KeyAllowedOrigins, []string{"http://localhost:3000", "http://localhost:8000"})
	v.SetDefault(KeyAppName, "HomeLibrary")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeySecureCookies, false)
	v.SetDefault(KeyRegistrationEnabled, true)
	v.SetDefault(KeyRateLimitEnabled, true)
	v.SetDefault(KeyGitHubCallbackURL, "http://localhost:8000/auth/github/callback")
}

// bareEnv lists the unprefixed variable names accepted for some keys.
var bareEnv = map[string]string{
	KeyPort:            "PORT",
	KeyDatabasePath:    "DATABASE_PATH",
	KeySecretKey:       "SECRET_KEY",
	KeyTokenTTLMinutes: "ACCESS_TOKEN_EXPIRE_MINUTES",
	KeyAllowedOrigins:  "ALLOWED_ORIGINS",
	KeyDebug:           "DEBUG",
	KeyAppName:         "APP_NAME",
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, bare := range bareEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		// The prefixed name is listed first so it wins when both are set.
		if err := v.BindEnv(key, prefixed, bare); err != nil {
			return fmt.Errorf("config: binding env for %s: %w", key, err)
		}
	}
	return nil
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"port":          KeyPort,
	"database-path": KeyDatabasePath,
	"debug":         KeyDebug,
	"log-level":     KeyLogLevel,
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: binding flag --%s: %w", name, err)
		}
	}
	return nil
}

func build(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:                v.GetInt(KeyPort),
		DatabasePath:        strings.TrimSpace(v.GetString(KeyDatabasePath)),
		SecretKey:           v.GetString(KeySecretKey),
		TokenTTL:            time.Duration(v.GetInt(KeyTokenTTLMinutes)) * time.Minute,
		AllowedOrigins:      splitOrigins(v.GetStringSlice(KeyAllowedOrigins)),
		AppName:             v.GetString(KeyAppName),
		Debug:               v.GetBool(KeyDebug),
		SecureCookies:       v.GetBool(KeySecureCookies),
		RegistrationEnabled: v.GetBool(KeyRegistrationEnabled),
		RateLimitEnabled:    v.GetBool(KeyRateLimitEnabled),
		GitHub: GitHubConfig{
			ClientID:     v.GetString(KeyGitHubClientID),
			ClientSecret: v.GetString(KeyGitHubClientSecret),
			CallbackURL:  v.GetString(KeyGitHubCallbackURL),
		},
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyLogLevel, err)
	}
	if cfg.Debug {
		cfg.LogLevel = slog.LevelDebug
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if len(c.SecretKey) < MinSecretLength {
		errs = append(errs, fmt.Errorf("%s must be at least %d characters (set SECRET_KEY)", KeySecretKey, MinSecretLength))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 65535, got %d", KeyPort, c.Port))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyTokenTTLMinutes))
	}
	if c.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyDatabasePath))
	}
	if c.AppName == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyAppName))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// splitOrigins accepts both a YAML list and a comma-separated env value.
func splitOrigins(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, strings.TrimRight(o, "/"))
			}
		}
	}
	return out
}
