package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var configTemplate = `# config.toml

[server]
  # Hostname or IP address for the server to listen on.
  # Default: "{{ .host }}" (e.g., "127.0.0.1" for local access, "0.0.0.0" for all interfaces)
  host = "{{ .host }}"

  # Port for the server to listen on.
  # Default: 7474
  port = 7474

  # Base URL for serving the API under a subdirectory.
  # Optional.
  # Default: ""
  #base_url = ""

[database]
  # Database type to use.
  # Supported: "sqlite", "postgres"
  # Default: "sqlite"
  type = "sqlite"

  # --- PostgreSQL Settings ---
  # Only used if database.type is set to "postgres".
  [database.postgres]
    # Default: "localhost"
    host = "localhost"

    # Default: 5432
    port = 5432

    # Default: "postgres"
    database = "postgres"

    # Default: "postgres"
    username = "postgres"

    # Default: "postgres"
    password = "postgres"

    # Options: "disable", "allow", "prefer", "require", "verify-ca", "verify-full"
    # Default: "disable"
    ssl_mode = "disable"

[logging]
  # Log file path. Empty means stdout only.
  # Default: ""
  path = "log/"

  # Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
  # Default: "DEBUG"
  level = "DEBUG"

  # Maximum size of a log file in megabytes before rotation.
  # Default: 50
  max_file_size = 50

  # Maximum number of old log files to keep.
  # Default: 3
  max_backup_count = 3

[hq]
  # Base URL of the headquarters exchange API.
  # Default: "http://localhost:7474"
  endpoint = "http://localhost:7474"

  # Token authenticating this store against HQ.
  # Generated automatically on first run if not set.
  api_token = "{{ .apiToken }}"

  # Timeout in seconds for one network exchange with HQ.
  # Default: 30
  timeout_seconds = 30

  # Serve the HQ-side exchange endpoint on this instance.
  # Default: false
  serve = false

[sync]
  # Cron schedule driving the automatic sync evaluation.
  # Default: "@every 1m"
  auto_sync_schedule = "@every 1m"

  # Maximum queue items pulled into a single batch run.
  # Default: 200
  dequeue_limit = 200

  # Days to keep completed queue items before cleanup.
  # Default: 7
  queue_retention_days = 7

  # Days to keep sync log rows before pruning.
  # Default: 30
  log_retention_days = 30

  # Exponential backoff base delay in seconds.
  # Default: 30
  retry_base_delay_seconds = 30

  # Exponential backoff maximum delay in seconds.
  # Default: 3600
  retry_max_delay_seconds = 3600

  # Failures before an item is dead-lettered.
  # Default: 5
  retry_max_attempts = 5
`

var generateRandomString = func(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func writeConfig(configPath string, configFile string) error {
	cfgPath := filepath.Join(configPath, configFile)

	// check if configPath exists, if not create it
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(configPath, os.ModePerm)
		if err != nil {
			log.Println(err)
			return err
		}
	}

	// check if config exists, if not create it
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		// set default host
		host := "127.0.0.1"

		if _, dockerErr := os.Stat("/.dockerenv"); dockerErr == nil {
			host = "0.0.0.0"
		} else if pd, cgroupErr := os.Open("/proc/1/cgroup"); cgroupErr == nil {
			defer func(pd *os.File) {
				if errClose := pd.Close(); errClose != nil {
					log.Printf("error closing proc/cgroup: %q", errClose)
				}
			}(pd)
			b := make([]byte, 4096)
			if _, readErr := pd.Read(b); readErr == nil {
				if strings.Contains(string(b), "/docker") || strings.Contains(string(b), "/lxc") {
					host = "0.0.0.0"
				}
			}
		}

		f, createErr := os.Create(cfgPath)
		if createErr != nil {
			log.Printf("error creating file: %q", createErr)
			return createErr
		}
		defer func(f *os.File) {
			if errClose := f.Close(); errClose != nil {
				log.Printf("error closing file: %q", errClose)
			}
		}(f)

		apiToken, tokenErr := generateRandomString(16)
		if tokenErr != nil {
			log.Printf("Failed to generate api token: %v. Using a placeholder.", tokenErr)
			apiToken = "replace-this-token-immediately"
		}

		tmpl, tmplErr := template.New("config").Parse(configTemplate)
		if tmplErr != nil {
			return errors.Wrap(tmplErr, "could not create config template")
		}

		tmplVars := map[string]string{
			"host":     host,
			"apiToken": apiToken,
		}

		var buffer bytes.Buffer
		if execErr := tmpl.Execute(&buffer, &tmplVars); execErr != nil {
			return errors.Wrap(execErr, "could not write config template output")
		}

		if _, writeErr := f.WriteString(buffer.String()); writeErr != nil {
			log.Printf("error writing contents to file: %v %q", configPath, writeErr)
			return writeErr
		}

		return f.Sync()
	}

	return nil
}

type Config interface {
	DynamicReload(log logger.Logger)
}

type AppConfig struct {
	Config *domain.Config
	m      sync.Mutex
}

func New(configPath string, version string) *AppConfig {
	c := &AppConfig{}
	c.defaults()
	c.Config.Version = version
	c.Config.ConfigPath = configPath

	c.load(configPath)

	return c
}

func (c *AppConfig) defaults() {
	c.Config = &domain.Config{
		Version:    "dev",
		ConfigPath: "",
		Server: domain.ServerConfig{
			Host:    "127.0.0.1",
			Port:    7474,
			BaseURL: "",
		},
		Database: domain.DatabaseConfig{
			Type: "sqlite",
			Postgres: domain.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				User:     "postgres",
				Pass:     "postgres",
				SslMode:  "disable",
			},
		},
		Logging: domain.LoggingConfig{
			Path:           "",
			Level:          "DEBUG",
			MaxFileSize:    50,
			MaxBackupCount: 3,
		},
		HQ: domain.HQConfig{
			Endpoint:       "http://localhost:7474",
			APIToken:       "",
			TimeoutSeconds: 30,
			Serve:          false,
		},
		Sync: domain.SyncConfig{
			AutoSyncSchedule:      "@every 1m",
			DequeueLimit:          200,
			QueueRetentionDays:    7,
			LogRetentionDays:      30,
			RetryBaseDelaySeconds: 30,
			RetryMaxDelaySeconds:  3600,
			RetryMaxAttempts:      5,
		},
	}
}

func (c *AppConfig) load(configPath string) {
	viper.SetConfigType("toml")
	configPath = path.Clean(configPath)

	if configPath != "" {
		if err := writeConfig(configPath, "config.toml"); err != nil {
			log.Printf("writeConfig error during load: %q", err)
		}
		viper.SetConfigFile(path.Join(configPath, "config.toml"))
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/storesync")
		viper.AddConfigPath("$HOME/.storesync")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Config file not found, using defaults: %s", viper.ConfigFileUsed())
		} else {
			log.Printf("Config read error: %q. Using defaults.", err)
		}
	}

	if err := viper.Unmarshal(&c.Config); err != nil {
		log.Fatalf("Could not unmarshal config file into struct: %v. Config file used: %s", err, viper.ConfigFileUsed())
	}
}

func (c *AppConfig) DynamicReload(log logger.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		log.Info().Msgf("Config file changed: %s. Reloading configuration.", e.Name)

		if err := viper.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("Error reading config file during dynamic reload")
			return
		}

		var newConfig domain.Config
		// preserve version and configPath, they are not from the file
		newConfig.Version = c.Config.Version
		newConfig.ConfigPath = c.Config.ConfigPath

		if err := viper.Unmarshal(&newConfig); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling config during dynamic reload")
			return
		}

		c.Config = &newConfig

		log.SetLogLevel(c.Config.Logging.Level)

		log.Debug().Msg("Configuration reloaded successfully!")
	})
	viper.WatchConfig()
}
