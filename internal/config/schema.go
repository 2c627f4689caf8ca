package config

import (
	"strings"
	"time"
)

// Config holds skillshelf configuration.
// Stored at: {home}/config.yaml
type Config struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	APIOrigin  string `mapstructure:"api_origin" yaml:"api_origin"`
	ProfileURL string `mapstructure:"profile_url" yaml:"profile_url"`

	Discovery DiscoveryCfg `mapstructure:"discovery" yaml:"discovery"`
	Filter    FilterCfg    `mapstructure:"filter" yaml:"filter"`
	Download  DownloadCfg  `mapstructure:"download" yaml:"download"`
	Catalog   CatalogCfg   `mapstructure:"catalog" yaml:"catalog"`
	HTTP      HTTPCfg      `mapstructure:"http" yaml:"http"`
	Log       LogCfg       `mapstructure:"log" yaml:"log"`
}

// DiscoveryCfg configures the per-skill discovery phase.
type DiscoveryCfg struct {
	API           string        `mapstructure:"api" yaml:"api"`                         // "v1" or "v2"
	PageSize      int           `mapstructure:"page_size" yaml:"page_size"`             // results per search page
	MaxPages      int           `mapstructure:"max_pages" yaml:"max_pages"`             // absolute page cap per topic
	PageSlack     int           `mapstructure:"page_slack" yaml:"page_slack"`           // pages added to the estimate
	TooBroadLimit int           `mapstructure:"too_broad_limit" yaml:"too_broad_limit"` // expected count above which a skill is skipped
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	RequestDelay  time.Duration `mapstructure:"request_delay" yaml:"request_delay"`
	SkillDelay    time.Duration `mapstructure:"skill_delay" yaml:"skill_delay"`
	Strict        bool          `mapstructure:"strict" yaml:"strict"` // strict enables the topic-match filter stage

	PrioritySkills []string            `mapstructure:"priority_skills" yaml:"priority_skills"`
	ExcludeSkills  []string            `mapstructure:"exclude_skills" yaml:"exclude_skills"`
	Aliases        map[string][]string `mapstructure:"aliases" yaml:"aliases"`
}

// FilterCfg holds the title-length thresholds of the filter pipeline.
// Useful values differ between the v1 and v2 search endpoints, so they are
// configuration rather than constants.
type FilterCfg struct {
	MinTitleLen   int `mapstructure:"min_title_len" yaml:"min_title_len"`
	ShortTitleLen int `mapstructure:"short_title_len" yaml:"short_title_len"`
	LongTitleLen  int `mapstructure:"long_title_len" yaml:"long_title_len"`
}

// DownloadCfg configures the EPUB download phase.
type DownloadCfg struct {
	Format            string        `mapstructure:"format" yaml:"format"` // legacy | enhanced | kindle | dual
	BookDelay         time.Duration `mapstructure:"book_delay" yaml:"book_delay"`
	MaxBooks          int           `mapstructure:"max_books" yaml:"max_books"` // per skill, 0 = unlimited
	TokenSaveInterval int           `mapstructure:"token_save_interval" yaml:"token_save_interval"`
	CheckpointEvery   int           `mapstructure:"checkpoint_every" yaml:"checkpoint_every"` // skills between checkpoints
}

// CatalogCfg configures the full-catalog page walk.
type CatalogCfg struct {
	StartPage int           `mapstructure:"start_page" yaml:"start_page"`
	EndPage   int           `mapstructure:"end_page" yaml:"end_page"`
	Delay     time.Duration `mapstructure:"delay" yaml:"delay"`
	SaveEvery int           `mapstructure:"save_every" yaml:"save_every"` // pages between walk-progress saves
}

// HTTPCfg configures the shared HTTP session.
type HTTPCfg struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// LogCfg configures the log sink.
type LogCfg struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://learning.oreilly.com",
		APIOrigin:  "https://api.oreilly.com",
		ProfileURL: "https://learning.oreilly.com/profile/",
		Discovery: DiscoveryCfg{
			API:           "v2",
			PageSize:      100,
			MaxPages:      100,
			PageSlack:     2,
			TooBroadLimit: 500,
			Workers:       3,
			RequestDelay:  400 * time.Millisecond,
			SkillDelay:    time.Second,
			Strict:        false,
			Aliases: map[string][]string{
				"ChatGPT":          {"GPT"},
				"GPT":              {"ChatGPT"},
				"Web APIs":         {"RESTful API", "API", "Application Programming Interface (API)"},
				"AI for Every Day": {"AI & ML", "Artificial Intelligence (AI)"},
			},
		},
		Filter: FilterCfg{
			MinTitleLen:   5,
			ShortTitleLen: 10,
			LongTitleLen:  15,
		},
		Download: DownloadCfg{
			Format:            "enhanced",
			BookDelay:         2 * time.Second,
			MaxBooks:          50,
			TokenSaveInterval: 5,
			CheckpointEvery:   10,
		},
		Catalog: CatalogCfg{
			StartPage: 1,
			EndPage:   4093,
			Delay:     1500 * time.Millisecond,
			SaveEvery: 10,
		},
		HTTP: HTTPCfg{
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    30 * time.Second,
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
		},
		Log: LogCfg{
			Level:      "info",
			File:       "skillshelf.log",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// Variants returns the EPUB variants selected by the configured format.
func (c DownloadCfg) Variants() []string {
	switch c.Format {
	case "dual":
		return []string{"enhanced", "kindle"}
	case "legacy", "kindle":
		return []string{c.Format}
	default:
		return []string{"enhanced"}
	}
}

// AliasesFor returns the configured alias list for a skill name. Lookup is
// case-insensitive because viper lowercases map keys loaded from files.
func (c DiscoveryCfg) AliasesFor(skill string) []string {
	if v, ok := c.Aliases[skill]; ok {
		return v
	}
	lower := strings.ToLower(skill)
	for k, v := range c.Aliases {
		if strings.ToLower(k) == lower {
			return v
		}
	}
	return nil
}

// IsExcluded reports whether a skill is on the exclusion list.
func (c DiscoveryCfg) IsExcluded(skill string) bool {
	for _, s := range c.ExcludeSkills {
		if s == skill {
			return true
		}
	}
	return false
}

// IsPriority reports whether a skill is on the priority list.
func (c DiscoveryCfg) IsPriority(skill string) bool {
	for _, s := range c.PrioritySkills {
		if s == skill {
			return true
		}
	}
	return false
}
