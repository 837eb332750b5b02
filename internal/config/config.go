// Package config provides configuration loading and validation for the CLI.
//
// Values come from four layers, highest first: CLI flags, the optional JSON
// config file, environment variables (.env included), built-in defaults.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/newscaster/internal/schemas"
	configschema "github.com/jonathan/newscaster/schemas"
)

// Persistence modes accepted in configuration.
const (
	PersistPostSuccessOnly = "post-success-only"
	PersistDraftThenMark   = "draft-then-mark"
)

// Config is the flat key/value configuration. JSON keys match the config
// file; each field also has an environment variable, see FromEnv.
type Config struct {
	LogLevel    string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	DatabaseURL string `json:"database_url,omitempty" validate:"omitempty,url"`
	Verbose     bool   `json:"verbose,omitempty"`

	// Language model
	LLMProvider          string `json:"llm_provider,omitempty" validate:"omitempty,oneof=openai gemini"`
	LLMAPIKey            string `json:"llm_api_key,omitempty"`
	LLMAPIURL            string `json:"llm_api_url,omitempty" validate:"omitempty,url"`
	LLMModelScript       string `json:"llm_model_script,omitempty"`
	LLMModelAnnouncement string `json:"llm_model_announcement,omitempty"`

	// Content
	TavilyAPIKey     string `json:"tavily_api_key,omitempty"`
	GroundingEnabled *bool  `json:"grounding_enabled,omitempty"`
	PersistenceMode  string `json:"persistence_mode,omitempty" validate:"omitempty,oneof=post-success-only draft-then-mark"`
	Persona          string `json:"persona,omitempty"`
	Topic            string `json:"topic,omitempty"`
	DedupWindow      int    `json:"dedup_window,omitempty" validate:"gte=0,lte=100"`

	FallbackImageTitle string `json:"fallback_image_title,omitempty"`

	// Rendering
	DIDAPIKey          string `json:"did_api_key,omitempty"`
	RenderAPIURL       string `json:"render_api_url,omitempty" validate:"omitempty,url"`
	RenderPollInterval string `json:"render_poll_interval,omitempty" validate:"omitempty,duration"`
	RenderMaxWait      string `json:"render_max_wait,omitempty" validate:"omitempty,duration"`
	RenderMaxAttempts  int    `json:"render_max_attempts,omitempty" validate:"gte=0"`

	// Publishing
	TwitterUsername  string `json:"twitter_username,omitempty"`
	TwitterPassword  string `json:"twitter_password,omitempty"`
	TwitterEmail     string `json:"twitter_email,omitempty" validate:"omitempty,email"`
	Twitter2FASecret string `json:"twitter_2fa_secret,omitempty"`
	TwitterAuthToken string `json:"twitter_cookies_auth_token,omitempty"`
	TwitterCT0       string `json:"twitter_cookies_ct0,omitempty"`
	TwitterGuestID   string `json:"twitter_cookies_guest_id,omitempty"`
	TwitterBearer    string `json:"twitter_bearer_token,omitempty"`
	PublishAPIURL    string `json:"publish_api_url,omitempty" validate:"omitempty,url"`
	PersistSessions  *bool  `json:"persist_sessions,omitempty"`

	// Archive
	ArchiveS3Bucket   string `json:"archive_s3_bucket,omitempty"`
	ArchiveS3Prefix   string `json:"archive_s3_prefix,omitempty"`
	ArchiveS3Region   string `json:"archive_s3_region,omitempty"`
	ArchiveS3Endpoint string `json:"archive_s3_endpoint,omitempty" validate:"omitempty,url"`

	// HTTP surface
	AdminToken string `json:"admin_token,omitempty"`
}

// envKeys maps Config fields to environment variables. Archive credentials
// are not listed; the AWS default credential chain reads them.
var envKeys = map[string]string{
	"LogLevel":             "LOG_LEVEL",
	"DatabaseURL":          "DATABASE_URL",
	"Verbose":              "VERBOSE",
	"LLMProvider":          "LLM_PROVIDER",
	"LLMAPIKey":            "LLM_API_KEY",
	"LLMAPIURL":            "LLM_API_URL",
	"LLMModelScript":       "LLM_MODEL_SCRIPT",
	"LLMModelAnnouncement": "LLM_MODEL_ANNOUNCEMENT",
	"TavilyAPIKey":         "TAVILY_API_KEY",
	"GroundingEnabled":     "GROUNDING_ENABLED",
	"PersistenceMode":      "PERSISTENCE_MODE",
	"Persona":              "PERSONA",
	"Topic":                "TOPIC",
	"DedupWindow":          "DEDUP_WINDOW",
	"FallbackImageTitle":   "FALLBACK_IMAGE_TITLE",
	"DIDAPIKey":            "DID_API_KEY",
	"RenderAPIURL":         "RENDER_API_URL",
	"RenderPollInterval":   "RENDER_POLL_INTERVAL",
	"RenderMaxWait":        "RENDER_MAX_WAIT",
	"RenderMaxAttempts":    "RENDER_MAX_ATTEMPTS",
	"TwitterUsername":      "TWITTER_USERNAME",
	"TwitterPassword":      "TWITTER_PASSWORD",
	"TwitterEmail":         "TWITTER_EMAIL",
	"Twitter2FASecret":     "TWITTER_2FA_SECRET",
	"TwitterAuthToken":     "TWITTER_COOKIES_AUTH_TOKEN",
	"TwitterCT0":           "TWITTER_COOKIES_CT0",
	"TwitterGuestID":       "TWITTER_COOKIES_GUEST_ID",
	"TwitterBearer":        "TWITTER_BEARER_TOKEN",
	"PublishAPIURL":        "PUBLISH_API_URL",
	"PersistSessions":      "PERSIST_SESSIONS",
	"ArchiveS3Bucket":      "ARCHIVE_S3_BUCKET",
	"ArchiveS3Prefix":      "ARCHIVE_S3_PREFIX",
	"ArchiveS3Region":      "ARCHIVE_S3_REGION",
	"ArchiveS3Endpoint":    "ARCHIVE_S3_ENDPOINT",
	"AdminToken":           "ADMIN_TOKEN",
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	grounding := true
	sessions := true
	return Config{
		LogLevel:           "info",
		LLMProvider:        "openai",
		GroundingEnabled:   &grounding,
		PersistenceMode:    PersistPostSuccessOnly,
		Persona:            "NeoNet",
		Topic:              "Sui blockchain",
		DedupWindow:        10,
		FallbackImageTitle: "Neo Portrait",
		RenderPollInterval: "5s",
		RenderMaxWait:      "10m",
		PersistSessions:    &sessions,
		ArchiveS3Prefix:    "videos",
		ArchiveS3Region:    "us-east-1",
	}
}

// FromEnv reads every key listed in envKeys through getenv. Unset and empty
// variables leave the field zero.
func FromEnv(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	var cfg Config
	v := reflect.ValueOf(&cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key, ok := envKeys[field.Name]
		if !ok {
			continue
		}
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			continue
		}
		if err := setFromString(v.Field(i), raw); err != nil {
			return nil, fmt.Errorf("config error: %s: %w", key, err)
		}
	}
	return &cfg, nil
}

func setFromString(f reflect.Value, raw string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(raw)
	case reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("not an integer: %q", raw)
		}
		f.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", raw)
		}
		f.SetBool(b)
	case reflect.Pointer:
		if f.Type().Elem().Kind() != reflect.Bool {
			return fmt.Errorf("unsupported field type %s", f.Type())
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", raw)
		}
		f.Set(reflect.ValueOf(&b))
	default:
		return fmt.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}

// LoadConfig loads configuration from a JSON file. The file is checked
// against the config schema before it is decoded.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse config JSON: %s is not valid JSON", path)
	}
	if err := schemas.Validate(configschema.Config, data); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// Load builds the effective configuration from an optional file, the
// environment and the defaults.
func Load(path string, getenv func(string) string) (*Config, error) {
	env, err := FromEnv(getenv)
	if err != nil {
		return nil, err
	}
	merged := env.MergeWithDefaults(Defaults())

	if path != "" {
		file, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		merged = file.MergeWithDefaults(merged)
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// MergeWithDefaults returns a new Config with zero fields filled from
// defaults. Plain bools cannot tell unset from false, so they are only
// turned on, never off; tri-state settings use *bool.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c
	rv := reflect.ValueOf(&result).Elem()
	dv := reflect.ValueOf(defaults)

	for i := 0; i < rv.NumField(); i++ {
		if rv.Field(i).IsZero() {
			rv.Field(i).Set(dv.Field(i))
		}
	}
	return result
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= 0
	})
	// report JSON keys rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks value formats. It does not require any key; see
// ValidateForRun for what a pipeline run needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", describe(err))
	}
	if c.ArchiveS3Endpoint != "" && c.ArchiveS3Bucket == "" {
		return fmt.Errorf("config error: 'archive_s3_endpoint' requires 'archive_s3_bucket'")
	}
	return nil
}

// runRequirements lists what a pipeline run cannot start without.
type runRequirements struct {
	DatabaseURL string `json:"database_url" validate:"required"`
	LLMAPIKey   string `json:"llm_api_key" validate:"required"`
	DIDAPIKey   string `json:"did_api_key" validate:"required"`
	// grounding needs a search key
	TavilyAPIKey string `json:"tavily_api_key" validate:"required_if=Grounding true"`
	Grounding    bool   `json:"grounding_enabled"`
	// either a session cookie or credentials to log in with
	TwitterAuthToken string `json:"twitter_cookies_auth_token" validate:"required_without_all=TwitterUsername"`
	TwitterUsername  string `json:"twitter_username" validate:"required_with=TwitterPassword"`
	TwitterPassword  string `json:"twitter_password" validate:"required_with=TwitterUsername"`
}

// ValidateForRun checks that every key a pipeline run needs is set.
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	req := runRequirements{
		DatabaseURL:      c.DatabaseURL,
		LLMAPIKey:        c.LLMAPIKey,
		DIDAPIKey:        c.DIDAPIKey,
		TavilyAPIKey:     c.TavilyAPIKey,
		Grounding:        c.Grounding(),
		TwitterAuthToken: c.TwitterAuthToken,
		TwitterUsername:  c.TwitterUsername,
		TwitterPassword:  c.TwitterPassword,
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("config error: %w", describe(err))
	}
	return nil
}

// describe turns validator output into one readable line per field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if key, ok := envKeyForJSON(field); ok {
			field = fmt.Sprintf("%s (%s)", field, key)
		}
		switch fe.Tag() {
		case "required", "required_if", "required_with", "required_without_all":
			msgs = append(msgs, fmt.Sprintf("'%s' is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("'%s' must be one of [%s]", field, fe.Param()))
		case "duration":
			msgs = append(msgs, fmt.Sprintf("'%s' must be a duration such as 5s or 10m", field))
		default:
			msgs = append(msgs, fmt.Sprintf("'%s' failed '%s' check", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func envKeyForJSON(jsonKey string) (string, bool) {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if strings.SplitN(f.Tag.Get("json"), ",", 2)[0] == jsonKey {
			key, ok := envKeys[f.Name]
			return key, ok
		}
	}
	return "", false
}

// Grounding reports whether runs search the news first. Unset means true.
func (c *Config) Grounding() bool {
	return c.GroundingEnabled == nil || *c.GroundingEnabled
}

// SessionPersistence reports whether publish cookies are saved between runs.
func (c *Config) SessionPersistence() bool {
	return c.PersistSessions == nil || *c.PersistSessions
}

// PollInterval returns the render poll interval, 0 when unset.
func (c *Config) PollInterval() time.Duration {
	return parseDuration(c.RenderPollInterval)
}

// MaxWait returns the render wait limit, 0 when unset.
func (c *Config) MaxWait() time.Duration {
	return parseDuration(c.RenderMaxWait)
}

// parseDuration assumes Validate has accepted s.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
