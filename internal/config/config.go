// Package config loads and validates runtime configuration from the
// environment. Configuration errors are fatal at startup: the pipeline
// refuses to run with an invalid filter or malformed thresholds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/job-alert/internal/keywords"
)

// Default values applied when the corresponding variable is unset.
const (
	DefaultTZ                  = "Australia/Melbourne"
	DefaultUserAgent           = "job-alert-bot/0.1"
	DefaultRequestTimeout      = 20 * time.Second
	DefaultSiteRetryAttempts   = 2
	DefaultSiteRetryDelay      = time.Second
	DefaultErrorAlertThreshold = 2
	DefaultHojubadaStoragePath = "data/hojubada_storage_state.json"
)

// Settings holds every configuration value consumed by the pipeline and its
// collaborators.
type Settings struct {
	SlackWebhookURL string `validate:"required,startswith=https://"`
	DatabaseURL     string `validate:"required"`

	HojubadaID              string
	HojubadaPW              string
	HojubadaStorageStateB64 string
	HojubadaStoragePath     string

	// IncludeKeywordsCSV extends (or, with ReplaceIncludeDefaults, replaces)
	// the built-in include set. Same shape for the exclude set.
	IncludeKeywordsCSV     string
	ExcludeKeywordsCSV     string
	ReplaceIncludeDefaults bool
	ReplaceExcludeDefaults bool

	TZ             string
	UserAgent      string
	RequestTimeout time.Duration `validate:"min=0"`

	SiteRetryAttempts   int           `validate:"min=1"`
	SiteRetryDelay      time.Duration `validate:"min=0"`
	ErrorAlertThreshold int           `validate:"min=1"`

	SitesConfigPath string

	LogLevel  string
	LogFormat string
}

var validate = validator.New()

// Load reads settings from environ. A nil environ reads the process
// environment. The returned settings are not yet validated; call Validate
// before use.
func Load(environ map[string]string) (*Settings, error) {
	get := func(key string) string {
		if environ != nil {
			return strings.TrimSpace(environ[key])
		}
		return strings.TrimSpace(os.Getenv(key))
	}

	s := &Settings{
		SlackWebhookURL:         get("SLACK_WEBHOOK_URL"),
		DatabaseURL:             get("DATABASE_URL"),
		HojubadaID:              get("HOJUBADA_ID"),
		HojubadaPW:              get("HOJUBADA_PW"),
		HojubadaStorageStateB64: get("HOJUBADA_STORAGE_STATE_B64"),
		HojubadaStoragePath:     getOr(get, "HOJUBADA_STORAGE_PATH", DefaultHojubadaStoragePath),
		IncludeKeywordsCSV:      get("KEYWORDS_CSV"),
		ExcludeKeywordsCSV:      get("EXCLUDE_KEYWORDS_CSV"),
		TZ:                      getOr(get, "TZ", DefaultTZ),
		UserAgent:               getOr(get, "USER_AGENT", DefaultUserAgent),
		SitesConfigPath:         get("SITES_CONFIG_PATH"),
		LogLevel:                getOr(get, "LOG_LEVEL", "info"),
		LogFormat:               getOr(get, "LOG_FORMAT", "console"),
	}

	var err error
	if s.ReplaceIncludeDefaults, err = parseBool(get("KEYWORDS_REPLACE_DEFAULTS")); err != nil {
		return nil, fmt.Errorf("KEYWORDS_REPLACE_DEFAULTS: %w", err)
	}
	if s.ReplaceExcludeDefaults, err = parseBool(get("EXCLUDE_KEYWORDS_REPLACE_DEFAULTS")); err != nil {
		return nil, fmt.Errorf("EXCLUDE_KEYWORDS_REPLACE_DEFAULTS: %w", err)
	}
	if s.RequestTimeout, err = parseDuration(get("REQUEST_TIMEOUT"), DefaultRequestTimeout); err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	if s.SiteRetryDelay, err = parseDuration(get("SITE_RETRY_DELAY"), DefaultSiteRetryDelay); err != nil {
		return nil, fmt.Errorf("SITE_RETRY_DELAY: %w", err)
	}
	if s.SiteRetryAttempts, err = parseInt(get("SITE_RETRY_ATTEMPTS"), DefaultSiteRetryAttempts); err != nil {
		return nil, fmt.Errorf("SITE_RETRY_ATTEMPTS: %w", err)
	}
	if s.ErrorAlertThreshold, err = parseInt(get("ERROR_ALERT_THRESHOLD"), DefaultErrorAlertThreshold); err != nil {
		return nil, fmt.Errorf("ERROR_ALERT_THRESHOLD: %w", err)
	}

	return s, nil
}

// Validate checks field constraints and verifies that a usable keyword filter
// can be built. An empty effective include set is a configuration error, not
// a pass-everything fallback.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if _, err := s.KeywordFilter(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// KeywordFilter builds the effective keyword filter from defaults plus the
// configured extensions.
func (s *Settings) KeywordFilter() (*keywords.Filter, error) {
	includes := keywords.ParseCSV(s.IncludeKeywordsCSV)
	if !s.ReplaceIncludeDefaults {
		includes = append(append([]string{}, keywords.DefaultIncludes...), includes...)
	}
	excludes := keywords.ParseCSV(s.ExcludeKeywordsCSV)
	if !s.ReplaceExcludeDefaults {
		excludes = append(append([]string{}, keywords.DefaultExcludes...), excludes...)
	}
	return keywords.NewFilter(includes, excludes)
}

// MaskSecret hides the middle of a secret for log output.
func MaskSecret(value string) string {
	const prefix, suffix = 3, 2
	if value == "" {
		return ""
	}
	if len(value) <= prefix+suffix {
		return strings.Repeat("*", len(value))
	}
	return value[:prefix] + strings.Repeat("*", len(value)-prefix-suffix) + value[len(value)-suffix:]
}

func getOr(get func(string) string, key, fallback string) string {
	if v := get(key); v != "" {
		return v
	}
	return fallback
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("expected a boolean, got %q", raw)
	}
	return v, nil
}

func parseInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("expected an integer, got %q", raw)
	}
	return v, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("expected a duration like \"20s\", got %q", raw)
	}
	return v, nil
}
