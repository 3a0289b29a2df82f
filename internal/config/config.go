package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvPhoneNumber      = "PHONE_NUMBER"
	EnvName             = "NAME"
	EnvIMAPEmail        = "IMAP_EMAIL"
	EnvIMAPPassword     = "IMAP_PASSWORD"
	EnvIMAPServer       = "IMAP_SERVER"
	EnvTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "TELEGRAM_CHAT_ID"

	EnvConfirmationSender  = "CONFIRMATION_SENDER"
	EnvConfirmationSubject = "CONFIRMATION_SUBJECT"
)

// Required lists every variable a booking run cannot start without.
var Required = []string{
	EnvPhoneNumber, EnvName,
	EnvIMAPEmail, EnvIMAPPassword, EnvIMAPServer,
	EnvTelegramBotToken, EnvTelegramChatID,
}

// TelegramVars and IMAPVars are the subsets the ping command checks.
var (
	TelegramVars = []string{EnvTelegramBotToken, EnvTelegramChatID}
	IMAPVars     = []string{EnvIMAPEmail, EnvIMAPPassword, EnvIMAPServer}
)

const DefaultCodePattern = `\b(\d{6})\b`

type Config struct {
	PhoneNumber string
	Name        string

	IMAPEmail           string
	IMAPPassword        string
	IMAPServer          string
	IMAPPort            int
	ConfirmationSender  string
	ConfirmationSubject string
	CodePattern         *regexp.Regexp

	TelegramBotToken string
	TelegramChatID   int64

	ScheduleFile  string
	TargetRunTime string
	CronMode      bool
	GroupSize     int
	MaxRetries    int

	ChromeHeadless  bool
	ChromePath      string
	ChromeRemoteURL string
	ElementTimeout  time.Duration

	CodePollInterval time.Duration
	CodeTimeout      time.Duration

	LogLevel  string
	LogFormat string

	// MetricsFile and TraceFile are optional run reports; empty disables them.
	MetricsFile string
	TraceFile   string
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv reads the full run configuration and fails, naming every missing
// variable at once, when a required one is unset.
func FromEnv() (Config, error) {
	cfg, err := Load()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Require(Required...); err != nil {
		return cfg, err
	}
	return cfg, cfg.RequireMailFilter()
}

// Load reads the environment without checking required variables. Malformed
// optional values are still errors.
func Load() (Config, error) {
	cfg := Config{
		PhoneNumber:         envDefault(EnvPhoneNumber, ""),
		Name:                envDefault(EnvName, ""),
		IMAPEmail:           envDefault(EnvIMAPEmail, ""),
		IMAPPassword:        os.Getenv(EnvIMAPPassword),
		IMAPServer:          envDefault(EnvIMAPServer, ""),
		ConfirmationSender:  envDefault(EnvConfirmationSender, ""),
		ConfirmationSubject: envDefault(EnvConfirmationSubject, ""),
		TelegramBotToken:    envDefault(EnvTelegramBotToken, ""),
		ScheduleFile:        envDefault("SCHEDULE_FILE", "schedule.json"),
		TargetRunTime:       envDefault("TARGET_RUN_TIME", "07:00:00"),
		ChromePath:          envDefault("CHROME_PATH", ""),
		ChromeRemoteURL:     envDefault("CHROME_REMOTE_URL", ""),
		LogLevel:            envDefault("LOG_LEVEL", "info"),
		LogFormat:           envDefault("LOG_FORMAT", "text"),
		MetricsFile:         envDefault("METRICS_FILE", ""),
		TraceFile:           envDefault("TRACE_FILE", ""),
	}

	var errs []error
	cfg.IMAPPort, errs = intVar(errs, "IMAP_PORT", "993", 1)
	cfg.GroupSize, errs = intVar(errs, "GROUP_SIZE", "1", 1)
	cfg.MaxRetries, errs = intVar(errs, "MAX_RETRIES", "3", 0)
	cfg.CronMode, errs = boolVar(errs, "CRON_MODE", "false")
	cfg.ChromeHeadless, errs = boolVar(errs, "CHROME_HEADLESS", "true")
	cfg.ElementTimeout, errs = durationVar(errs, "ELEMENT_TIMEOUT", "10s")
	cfg.CodePollInterval, errs = durationVar(errs, "CODE_POLL_INTERVAL", "1s")
	cfg.CodeTimeout, errs = durationVar(errs, "CODE_TIMEOUT", "10m")

	if v := envDefault(EnvTelegramChatID, ""); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q", EnvTelegramChatID, v))
		}
		cfg.TelegramChatID = id
	}

	pattern := envDefault("CONFIRMATION_CODE_PATTERN", DefaultCodePattern)
	re, err := regexp.Compile(pattern)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid CONFIRMATION_CODE_PATTERN: %w", err))
	}
	cfg.CodePattern = re

	if _, err := time.Parse("15:04:05", cfg.TargetRunTime); err != nil {
		errs = append(errs, fmt.Errorf("invalid TARGET_RUN_TIME %q (want HH:MM:SS)", cfg.TargetRunTime))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT %q (want text or json)", cfg.LogFormat))
	}

	return cfg, errors.Join(errs...)
}

// Require fails when any of the named variables is empty, listing all of them.
func (c Config) Require(names ...string) error {
	values := map[string]bool{
		EnvPhoneNumber:      c.PhoneNumber != "",
		EnvName:             c.Name != "",
		EnvIMAPEmail:        c.IMAPEmail != "",
		EnvIMAPPassword:     c.IMAPPassword != "",
		EnvIMAPServer:       c.IMAPServer != "",
		EnvTelegramBotToken: c.TelegramBotToken != "",
		EnvTelegramChatID:   c.TelegramChatID != 0,
	}
	var missing []string
	for _, n := range names {
		if !values[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireMailFilter fails unless the confirmation mail can be told apart from
// the rest of the inbox.
func (c Config) RequireMailFilter() error {
	if c.ConfirmationSender == "" && c.ConfirmationSubject == "" {
		return fmt.Errorf("set %s or %s to identify the confirmation mail", EnvConfirmationSender, EnvConfirmationSubject)
	}
	return nil
}

func envDefault(k, d string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	return v
}

func intVar(errs []error, k, d string, min int) (int, []error) {
	v := envDefault(k, d)
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return n, append(errs, fmt.Errorf("invalid %s %q", k, v))
	}
	return n, errs
}

func boolVar(errs []error, k, d string) (bool, []error) {
	v := envDefault(k, d)
	b, err := strconv.ParseBool(v)
	if err != nil {
		return b, append(errs, fmt.Errorf("invalid %s %q", k, v))
	}
	return b, errs
}

func durationVar(errs []error, k, d string) (time.Duration, []error) {
	v := envDefault(k, d)
	dur, err := time.ParseDuration(v)
	if err != nil || dur < 0 {
		return dur, append(errs, fmt.Errorf("invalid %s %q", k, v))
	}
	return dur, errs
}
