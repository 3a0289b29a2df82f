package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	EnvPhoneNumber, EnvName, EnvIMAPEmail, EnvIMAPPassword, EnvIMAPServer,
	EnvTelegramBotToken, EnvTelegramChatID,
	"IMAP_PORT", EnvConfirmationSender, EnvConfirmationSubject, "CONFIRMATION_CODE_PATTERN", "SCHEDULE_FILE",
	"TARGET_RUN_TIME", "CRON_MODE", "GROUP_SIZE", "MAX_RETRIES", "CHROME_HEADLESS",
	"CHROME_PATH", "CHROME_REMOTE_URL", "ELEMENT_TIMEOUT", "CODE_POLL_INTERVAL",
	"CODE_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT", "METRICS_FILE", "TRACE_FILE",
}

// clearEnv blanks every variable the package reads; t.Setenv restores them.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(EnvPhoneNumber, "5551234567")
	t.Setenv(EnvName, "Jo Swimmer")
	t.Setenv(EnvIMAPEmail, "jo@example.org")
	t.Setenv(EnvIMAPPassword, "app-password")
	t.Setenv(EnvIMAPServer, "imap.example.org")
	t.Setenv(EnvTelegramBotToken, "123:abc")
	t.Setenv(EnvTelegramChatID, "-10042")
	t.Setenv(EnvConfirmationSender, "bookings@rec.example.org")
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "5551234567", cfg.PhoneNumber)
	assert.Equal(t, int64(-10042), cfg.TelegramChatID)
	assert.Equal(t, 993, cfg.IMAPPort)
	assert.Equal(t, "schedule.json", cfg.ScheduleFile)
	assert.Equal(t, "07:00:00", cfg.TargetRunTime)
	assert.False(t, cfg.CronMode)
	assert.Equal(t, 1, cfg.GroupSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.True(t, cfg.ChromeHeadless)
	assert.Equal(t, 10*time.Second, cfg.ElementTimeout)
	assert.Equal(t, time.Second, cfg.CodePollInterval)
	assert.Equal(t, 10*time.Minute, cfg.CodeTimeout)
	assert.Equal(t, DefaultCodePattern, cfg.CodePattern.String())
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("CRON_MODE", "true")
	t.Setenv("GROUP_SIZE", "2")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("CHROME_HEADLESS", "false")
	t.Setenv("CODE_TIMEOUT", "0")
	t.Setenv("CONFIRMATION_CODE_PATTERN", `code: ([A-Z0-9]{6})`)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.CronMode)
	assert.Equal(t, 2, cfg.GroupSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.False(t, cfg.ChromeHeadless)
	assert.Zero(t, cfg.CodeTimeout)
	assert.Equal(t, `code: ([A-Z0-9]{6})`, cfg.CodePattern.String())
}

func TestFromEnvListsAllMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvName, "Jo Swimmer")
	t.Setenv(EnvIMAPServer, "imap.example.org")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Equal(t,
		"missing required environment variables: PHONE_NUMBER, IMAP_EMAIL, IMAP_PASSWORD, TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID",
		err.Error())
}

func TestFromEnvRequiresMailFilter(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv(EnvConfirmationSender, "")

	_, err := FromEnv()
	assert.EqualError(t, err, "set CONFIRMATION_SENDER or CONFIRMATION_SUBJECT to identify the confirmation mail")

	t.Setenv(EnvConfirmationSubject, "Verification code")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "Verification code", cfg.ConfirmationSubject)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := map[string]string{
		"GROUP_SIZE":                "0",
		"MAX_RETRIES":               "-1",
		"CRON_MODE":                 "sometimes",
		"CODE_POLL_INTERVAL":        "fast",
		"TARGET_RUN_TIME":           "7am",
		"LOG_FORMAT":                "xml",
		"CONFIRMATION_CODE_PATTERN": "(",
		EnvTelegramChatID:           "chat",
	}
	for k, v := range tests {
		t.Run(k, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			t.Setenv(k, v)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), k)
		})
	}
}

func TestRequireSubset(t *testing.T) {
	cfg := Config{TelegramBotToken: "123:abc", TelegramChatID: 7}
	require.NoError(t, cfg.Require(TelegramVars...))

	err := cfg.Require(IMAPVars...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAP_EMAIL, IMAP_PASSWORD, IMAP_SERVER")
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvName, "From Env")
	require.NoError(t, os.Unsetenv(EnvPhoneNumber))
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PHONE_NUMBER=5550000000\nNAME=From File\n"), 0o600))

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "5550000000", os.Getenv(EnvPhoneNumber))
	assert.Equal(t, "From Env", os.Getenv(EnvName))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}
