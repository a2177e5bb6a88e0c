// config.go: loading and access for the mouseTube service configuration
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Settings holds the full runtime configuration of the service.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main struct {
		Name string    // name of this mouseTube node
		Log  LogConfig // logging configuration
	}

	Media MediaConfig // media and temp storage roots

	WebServer struct {
		Debug   bool   // true to enable debug mode
		Enabled bool   // true to enable web server
		Port    string // port for web server
	}

	Output OutputConfig // datastore configuration

	Publication PublicationConfig // external repository publication settings
}

// MediaConfig describes where uploaded and staged audio files live on disk.
type MediaConfig struct {
	Root     string // root directory for permanent media storage, maps /media/ links
	TempRoot string // root directory for temporary upload staging, maps /temp/ links
}

// OutputConfig selects and configures the persistent datastore.
type OutputConfig struct {
	SQLite struct {
		Enabled bool   // true to enable sqlite datastore
		Path    string // path to sqlite database file
	}
	MySQL struct {
		Enabled  bool   // true to enable mysql datastore
		Username string // username for mysql database
		Password string // password for mysql database
		Database string // database name for mysql database
		Host     string // host for mysql database
		Port     string // port for mysql database
	}
}

// PublicationConfig holds settings for publishing sessions to external repositories.
type PublicationConfig struct {
	Zenodo ZenodoConfig // Zenodo repository settings
	Jobs   JobsConfig   // background job settings
}

// ZenodoConfig configures the Zenodo adapter. AccessToken is required when
// Enabled is true; validation fails hard without it.
type ZenodoConfig struct {
	Enabled     bool   // true to enable Zenodo publication
	Debug       bool   // true to enable verbose adapter logging
	APIURL      string // base API URL, sandbox by default
	AccessToken string // bearer/query access token
	Community   string // community identifier attached to every deposition
}

// JobsConfig bounds the retry behavior of the background task layer.
type JobsConfig struct {
	MaxRetries   int // retries after the first attempt, pipeline default is 1
	RetryDelay   int // seconds before the first retry
	MaxQueueSize int // maximum pending jobs
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // path to the log file
	Rotation RotationType // type of log rotation
	MaxSize  int64        // max size in bytes for RotationSize
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	settingsOnce     sync.Once
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Environment override, e.g. MOUSETUBE_PUBLICATION_ZENODO_ACCESSTOKEN
	viper.SetEnvPrefix("mousetube")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, proceed on defaults and environment
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// Setting returns the current settings instance, loading the configuration
// on first use.
func Setting() *Settings {
	settingsOnce.Do(func() {
		settingsMutex.RLock()
		loaded := settingsInstance != nil
		settingsMutex.RUnlock()
		if !loaded {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings installs a settings instance directly, for tests.
func SetTestSettings(s *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = s
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in precedence order: working directory, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	configDir, err := os.UserConfigDir()
	if err != nil {
		// No home directory, working directory remains the only search path
		return paths, nil
	}

	paths = append(paths, filepath.Join(configDir, "mousetube"))
	return paths, nil
}
