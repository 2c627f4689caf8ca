package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("base_url", defaults.BaseURL)
	viper.SetDefault("api_origin", defaults.APIOrigin)
	viper.SetDefault("profile_url", defaults.ProfileURL)
	viper.SetDefault("discovery", defaults.Discovery)
	viper.SetDefault("filter", defaults.Filter)
	viper.SetDefault("download", defaults.Download)
	viper.SetDefault("catalog", defaults.Catalog)
	viper.SetDefault("http", defaults.HTTP)
	viper.SetDefault("log", defaults.Log)

	// Environment variables with SKILLSHELF_ prefix
	viper.SetEnvPrefix("SKILLSHELF")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.skillshelf")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	// The starter file is hand-maintained so durations read as "400ms" and
	// every section carries comments; parse it back to catch template drift.
	var probe map[string]any
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &probe); err != nil {
		return fmt.Errorf("default config template is invalid: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

const defaultConfigYAML = `# skillshelf configuration
# Credentials are not stored here: export your browser cookies for
# learning.oreilly.com as JSON and place them at ~/.skillshelf/cookies.json.

base_url: https://learning.oreilly.com
api_origin: https://api.oreilly.com
profile_url: https://learning.oreilly.com/profile/

discovery:
  api: v2                # search generation: v1 or v2
  page_size: 100
  max_pages: 100         # absolute page cap per topic
  page_slack: 2          # pages added to the expected-count estimate
  too_broad_limit: 500   # expected count above which a skill is skipped
  workers: 3
  request_delay: 400ms
  skill_delay: 1s
  strict: false          # strict requires every kept book to mention the skill
  priority_skills: []
  exclude_skills: []
  aliases:
    ChatGPT: [GPT]
    GPT: [ChatGPT]
    Web APIs: [RESTful API, API, Application Programming Interface (API)]
    AI for Every Day: [AI & ML, Artificial Intelligence (AI)]

filter:
  min_title_len: 5
  short_title_len: 10
  long_title_len: 15

download:
  format: enhanced       # legacy | enhanced | kindle | dual
  book_delay: 2s
  max_books: 50          # per skill, 0 = unlimited
  token_save_interval: 5 # persist cookies every N completed books
  checkpoint_every: 10   # skills between progress checkpoints

catalog:
  start_page: 1
  end_page: 4093
  delay: 1500ms
  save_every: 10         # pages between walk-progress saves

http:
  connect_timeout: 10s
  read_timeout: 30s
  user_agent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"

log:
  level: info
  file: skillshelf.log
  max_size_mb: 20
  max_backups: 3
`
