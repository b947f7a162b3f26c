package main

import (
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rendis/blockrun/internal/hinova"
	"github.com/rendis/blockrun/internal/secrets"
	"github.com/rendis/blockrun/pkg/schema"
)

// Config holds all blockrun configuration.
// Priority: flags > env vars (BLOCKRUN_*) > settings.json > defaults.
type Config struct {
	DBPath             string        `mapstructure:"db_path"`
	LogLevel           string        `mapstructure:"log_level"`
	MasterKey          string        `mapstructure:"master_key"` // hex, 32 bytes
	Passphrase         string        `mapstructure:"passphrase"`
	Salt               string        `mapstructure:"salt"`
	HinovaBaseURL      string        `mapstructure:"hinova_base_url"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	MaxResponseBody    int64         `mapstructure:"max_response_body"`
	CredentialCacheTTL time.Duration `mapstructure:"credential_cache_ttl"`
	RecordExecutions   bool          `mapstructure:"record_executions"`
}

func blockrunDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blockrun"
	}
	return filepath.Join(home, ".blockrun")
}

func settingsPath() string {
	return filepath.Join(blockrunDir(), "settings.json")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "file:"+filepath.Join(blockrunDir(), "blockrun.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("master_key", "")
	v.SetDefault("passphrase", "")
	v.SetDefault("salt", "")
	v.SetDefault("hinova_base_url", hinova.DefaultBaseURL)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("max_response_body", 10*1024*1024)
	v.SetDefault("credential_cache_ttl", 5*time.Minute)
	v.SetDefault("record_executions", true)
}

// loadConfig layers the settings file and the environment over the
// defaults. A missing settings file is not an error; an explicitly given
// one must exist.
func loadConfig(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("BLOCKRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	explicit := configFile != ""
	if !explicit {
		configFile = settingsPath()
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if explicit || !missing {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// vaultConfig converts the key material settings. A master key wins over a
// passphrase.
func (c Config) vaultConfig() (secrets.VaultConfig, error) {
	if c.MasterKey != "" {
		key, err := hex.DecodeString(c.MasterKey)
		if err != nil {
			return secrets.VaultConfig{}, schema.NewError(schema.ErrCodeVault, "master_key must be hex encoded").WithCause(err)
		}
		return secrets.VaultConfig{MasterKey: key}, nil
	}
	return secrets.VaultConfig{Passphrase: c.Passphrase, Salt: []byte(c.Salt)}, nil
}
