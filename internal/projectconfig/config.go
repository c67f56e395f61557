// Package projectconfig loads the .attend.yaml configuration file and its
// ATTEND_* environment overrides.
package projectconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/attendbot/attend/internal/hooks"
	"github.com/attendbot/attend/internal/models"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file searched for by Load.
const FileName = ".attend.yaml"

// Default values. New() references them and no other code should duplicate
// them.
const (
	DefaultBaseURL           = "https://lms.example.ac.id"
	DefaultLoginPath         = "/login"
	DefaultMemberPath        = "/member"
	DefaultForceDownloadPath = "/media_public/force_download/"
	DefaultCookiePrefix      = "colek_member"

	DefaultDownloadsDir = "downloads"
	DefaultCookiesFile  = "cookies.json"
	DefaultLedgerFile   = "attendance_log.json"
	DefaultCacheDir     = ".attend-cache"
	DefaultLogsDir      = "logs"
	DefaultLockFile     = ".attend.lock"

	DefaultTimezone  = "Asia/Jakarta"
	DefaultCron      = "*/30 7-18 * * 1-5"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultLocale    = "id-ID"

	DefaultMaxAttempts = 3
)

// Credential placeholders shipped in the sample config. They are rejected.
const (
	PlaceholderUsername = "your_username"
	PlaceholderPassword = "your_password"
)

// ConfigurationError is a fatal problem with the loaded configuration.
type ConfigurationError struct {
	Source   string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	src := e.Source
	if src == "" {
		src = "configuration"
	}
	return fmt.Sprintf("%s: %s", src, strings.Join(e.Problems, "; "))
}

type CredentialsConfig struct {
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

type PortalConfig struct {
	BaseURL           string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	LoginPath         string `yaml:"login_path,omitempty" json:"login_path,omitempty"`
	MemberPath        string `yaml:"member_path,omitempty" json:"member_path,omitempty"`
	ForceDownloadPath string `yaml:"force_download_path,omitempty" json:"force_download_path,omitempty"`
	CookiePrefix      string `yaml:"cookie_prefix,omitempty" json:"cookie_prefix,omitempty"`
}

// PathsConfig holds file and directory locations. Relative paths are
// resolved against the directory of the config file.
type PathsConfig struct {
	Downloads string `yaml:"downloads,omitempty" json:"downloads,omitempty"`
	Cookies   string `yaml:"cookies,omitempty" json:"cookies,omitempty"`
	Ledger    string `yaml:"ledger,omitempty" json:"ledger,omitempty"`
	Cache     string `yaml:"cache,omitempty" json:"cache,omitempty"`
	Logs      string `yaml:"logs,omitempty" json:"logs,omitempty"`
	Lock      string `yaml:"lock,omitempty" json:"lock,omitempty"`
}

type ScheduleConfig struct {
	Cron        string `yaml:"cron,omitempty" json:"cron,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type BrowserConfig struct {
	Headless    *bool  `yaml:"headless,omitempty" json:"headless,omitempty"`
	UserAgent   string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	Locale      string `yaml:"locale,omitempty" json:"locale,omitempty"`
	MaxAttempts int    `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
}

// RuleConfig selects an extraction rule by kind.
type RuleConfig struct {
	Kind   string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

type ExtractionConfig struct {
	Schedule RuleConfig `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Meetings RuleConfig `yaml:"meetings,omitempty" json:"meetings,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	Portal      PortalConfig      `yaml:"portal,omitempty" json:"portal,omitempty"`
	Paths       PathsConfig       `yaml:"paths,omitempty" json:"paths,omitempty"`
	Timezone    string            `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	Schedule    ScheduleConfig    `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Browser     BrowserConfig     `yaml:"browser,omitempty" json:"browser,omitempty"`
	Extraction  ExtractionConfig  `yaml:"extraction,omitempty" json:"extraction,omitempty"`
	Hooks       hooks.HooksConfig `yaml:"hooks,omitempty" json:"hooks,omitempty"`

	// Legacy flat credentials from config.json.
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	source string
	dir    string
}

// New returns a Config with all defaults populated.
func New() *Config {
	return &Config{
		Portal: PortalConfig{
			BaseURL:           DefaultBaseURL,
			LoginPath:         DefaultLoginPath,
			MemberPath:        DefaultMemberPath,
			ForceDownloadPath: DefaultForceDownloadPath,
			CookiePrefix:      DefaultCookiePrefix,
		},
		Paths: PathsConfig{
			Downloads: DefaultDownloadsDir,
			Cookies:   DefaultCookiesFile,
			Ledger:    DefaultLedgerFile,
			Cache:     DefaultCacheDir,
			Logs:      DefaultLogsDir,
			Lock:      DefaultLockFile,
		},
		Timezone: DefaultTimezone,
		Schedule: ScheduleConfig{Cron: DefaultCron},
		Browser: BrowserConfig{
			Headless:    boolPtr(true),
			UserAgent:   DefaultUserAgent,
			Locale:      DefaultLocale,
			MaxAttempts: DefaultMaxAttempts,
		},
	}
}

// Load finds .attend.yaml by walking up from startDir (max 10 levels),
// merges it onto the defaults and applies environment overrides. Without a
// file the defaults are used and relative paths resolve against startDir.
func Load(startDir string) (*Config, error) {
	path, data, err := findConfigFile(startDir)
	if errors.Is(err, os.ErrNotExist) {
		cfg := New()
		abs, absErr := filepath.Abs(startDir)
		if absErr != nil {
			return nil, fmt.Errorf("resolving path %q: %w", startDir, absErr)
		}
		cfg.dir = abs
		return cfg, applyEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}
	return parse(path, data)
}

// LoadFile reads an explicit config file. YAML and JSON are both accepted.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", path, err)
	}
	return parse(abs, data)
}

func parse(path string, data []byte) (*Config, error) {
	var fileCfg Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg := New()
	mergeConfig(cfg, &fileCfg)
	cfg.source = path
	cfg.dir = filepath.Dir(path)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile walks up from dir looking for .attend.yaml (max 10 levels).
// Returns os.ErrNotExist if none is found.
func findConfigFile(dir string) (string, []byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *Config) {
	// Credentials, legacy flat keys first so the nested block wins
	if src.Username != "" {
		dst.Credentials.Username = src.Username
	}
	if src.Password != "" {
		dst.Credentials.Password = src.Password
	}
	setString(&dst.Credentials.Username, src.Credentials.Username)
	setString(&dst.Credentials.Password, src.Credentials.Password)

	// Portal
	setString(&dst.Portal.BaseURL, src.Portal.BaseURL)
	setString(&dst.Portal.LoginPath, src.Portal.LoginPath)
	setString(&dst.Portal.MemberPath, src.Portal.MemberPath)
	setString(&dst.Portal.ForceDownloadPath, src.Portal.ForceDownloadPath)
	setString(&dst.Portal.CookiePrefix, src.Portal.CookiePrefix)

	// Paths
	setString(&dst.Paths.Downloads, src.Paths.Downloads)
	setString(&dst.Paths.Cookies, src.Paths.Cookies)
	setString(&dst.Paths.Ledger, src.Paths.Ledger)
	setString(&dst.Paths.Cache, src.Paths.Cache)
	setString(&dst.Paths.Logs, src.Paths.Logs)
	setString(&dst.Paths.Lock, src.Paths.Lock)

	setString(&dst.Timezone, src.Timezone)
	setString(&dst.Schedule.Cron, src.Schedule.Cron)
	setString(&dst.Schedule.Description, src.Schedule.Description)

	// Browser
	if src.Browser.Headless != nil {
		dst.Browser.Headless = src.Browser.Headless
	}
	setString(&dst.Browser.UserAgent, src.Browser.UserAgent)
	setString(&dst.Browser.Locale, src.Browser.Locale)
	if src.Browser.MaxAttempts != 0 {
		dst.Browser.MaxAttempts = src.Browser.MaxAttempts
	}

	if src.Extraction.Schedule.Kind != "" {
		dst.Extraction.Schedule = src.Extraction.Schedule
	}
	if src.Extraction.Meetings.Kind != "" {
		dst.Extraction.Meetings = src.Extraction.Meetings
	}

	dst.Hooks = src.Hooks
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// overrides holds raw ATTEND_* environment values.
type overrides struct {
	Username     string `env:"ATTEND_USERNAME"`
	Password     string `env:"ATTEND_PASSWORD"`
	BaseURL      string `env:"ATTEND_BASE_URL"`
	DownloadsDir string `env:"ATTEND_DOWNLOADS_DIR"`
	CookiesFile  string `env:"ATTEND_COOKIES_FILE"`
	LedgerFile   string `env:"ATTEND_LEDGER_FILE"`
	LogsDir      string `env:"ATTEND_LOGS_DIR"`
	Timezone     string `env:"ATTEND_TIMEZONE"`
	Cron         string `env:"ATTEND_CRON"`
	Headless     *bool  `env:"ATTEND_HEADLESS"`
}

func applyEnv(cfg *Config) error {
	var o overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setString(&cfg.Credentials.Username, o.Username)
	setString(&cfg.Credentials.Password, o.Password)
	setString(&cfg.Portal.BaseURL, o.BaseURL)
	setString(&cfg.Paths.Downloads, o.DownloadsDir)
	setString(&cfg.Paths.Cookies, o.CookiesFile)
	setString(&cfg.Paths.Ledger, o.LedgerFile)
	setString(&cfg.Paths.Logs, o.LogsDir)
	setString(&cfg.Timezone, o.Timezone)
	setString(&cfg.Schedule.Cron, o.Cron)
	if o.Headless != nil {
		cfg.Browser.Headless = o.Headless
	}
	return nil
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	var problems []string

	u, p := c.Credentials.Username, c.Credentials.Password
	switch {
	case u == "" || p == "":
		problems = append(problems, "username and password are required")
	case u == PlaceholderUsername || p == PlaceholderPassword:
		problems = append(problems, "default placeholder credentials detected, update the config with your account")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("unknown timezone %q", c.Timezone))
	}

	if base, err := url.Parse(c.Portal.BaseURL); err != nil || base.Scheme == "" || base.Host == "" {
		problems = append(problems, fmt.Sprintf("portal base_url %q must be an absolute URL", c.Portal.BaseURL))
	}

	if c.Browser.MaxAttempts < 1 {
		problems = append(problems, "browser.max_attempts must be at least 1")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Source: c.source, Problems: problems}
	}
	return nil
}

// Source is the file the config was read from, or "" for defaults.
func (c *Config) Source() string { return c.source }

// Dir is the directory relative paths resolve against.
func (c *Config) Dir() string { return c.dir }

// Resolve makes p absolute relative to the config directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Headless reports the configured browser mode.
func (c *Config) Headless() bool {
	return c.Browser.Headless == nil || *c.Browser.Headless
}

// Creds returns the account credentials.
func (c *Config) Creds() models.Credentials {
	return models.Credentials{Username: c.Credentials.Username, Password: c.Credentials.Password}
}

// PortalModel returns the portal endpoints.
func (c *Config) PortalModel() models.Portal {
	return models.Portal{
		BaseURL:           c.Portal.BaseURL,
		LoginPath:         c.Portal.LoginPath,
		MemberPath:        c.Portal.MemberPath,
		ForceDownloadPath: c.Portal.ForceDownloadPath,
		CookiePrefix:      c.Portal.CookiePrefix,
	}
}

// Save writes c as YAML to path, readable by the owner only.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
