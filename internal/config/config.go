// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken     = "TELEGRAM_TOKEN"
	KeyBotOwner          = "BOT_OWNER"
	KeyAuthorizedUsers   = "AUTHORIZED_USERS"
	KeyAdminUsers        = "ADMIN_USERS"
	KeyMongoURI          = "MONGO_URI"
	KeyMongoDB           = "MONGO_DB"
	KeyAppEnv            = "APP_ENV"
	KeyLogLevel          = "LOG_LEVEL"
	KeyLogFile           = "LOG_FILE"
	KeyHTTPPort          = "HTTP_PORT"
	KeyMonitoredServices = "MONITORED_SERVICES"
	KeyDiskPath          = "DISK_PATH"
	KeyTailLogPath       = "TAIL_LOG_PATH"
	KeyTailLogLines      = "TAIL_LOG_LINES"
	KeyConsoleEnabled    = "CONSOLE_ENABLED"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv            = EnvProduction
	DefaultLogLevel          = "info"
	DefaultHTTPPort          = 8080
	DefaultMonitoredServices = "ssh,nginx,docker,mysql"
	DefaultDiskPath          = "/"
	DefaultTailLogPath       = "bot.log"
	DefaultTailLogLines      = 20

	// Recommended database names by environment.
	DefaultMongoDBProd = "server_monitor"
	DefaultMongoDBDev  = "server_monitor_dev"

	maxTailLogLines = 200
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyBotOwner,
		Example:     "123456789",
		Required:    true,
		Description: "Telegram user_id seeded as admin on every start.",
	},
	{
		Key:         KeyAuthorizedUsers,
		Example:     "111,222",
		Description: "Comma-separated user_ids seeded into the authorized set.",
	},
	{
		Key:         KeyAdminUsers,
		Example:     "333",
		Description: "Comma-separated user_ids seeded into the admin set.",
		Notes:       "Admins are always authorized as well.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string; enables persistence of the user lists.",
		Notes:       "When unset the authorization and registration state lives in memory only.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Description: "MongoDB database name.",
		Notes:       "Defaults to " + DefaultMongoDBProd + " in production and " + DefaultMongoDBDev + " in development.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyLogFile,
		Example:     "bot.log",
		Description: "Append logs to this file instead of stderr.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/metrics port; 0 disables the server.",
	},
	{
		Key:         KeyMonitoredServices,
		Example:     DefaultMonitoredServices,
		Default:     DefaultMonitoredServices,
		Description: "systemd units reported by /services.",
	},
	{
		Key:         KeyDiskPath,
		Example:     DefaultDiskPath,
		Default:     DefaultDiskPath,
		Description: "Mount point reported by /status and /storage.",
	},
	{
		Key:         KeyTailLogPath,
		Example:     "/var/log/syslog",
		Default:     DefaultTailLogPath,
		Description: "File whose tail is returned by /log.",
	},
	{
		Key:         KeyTailLogLines,
		Example:     strconv.Itoa(DefaultTailLogLines),
		Default:     strconv.Itoa(DefaultTailLogLines),
		Description: "Number of lines returned by /log.",
		Notes:       "Capped at " + strconv.Itoa(maxTailLogLines) + ".",
	},
	{
		Key:         KeyConsoleEnabled,
		Example:     "true",
		Default:     "true",
		Description: "Run the operator console on stdin/stdout.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken     string
	BotOwnerID        int64
	AuthorizedUsers   []int64
	AdminUsers        []int64
	MongoURI          string
	MongoDB           string
	AppEnv            string
	LogLevel          string
	LogFile           string
	HTTPPort          int
	MonitoredServices []string
	DiskPath          string
	TailLogPath       string
	TailLogLines      int
	ConsoleEnabled    bool
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:            firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:     strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:          strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:           strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:          firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		LogFile:           strings.TrimSpace(os.Getenv(KeyLogFile)),
		HTTPPort:          DefaultHTTPPort,
		MonitoredServices: splitList(firstNonEmpty(os.Getenv(KeyMonitoredServices), DefaultMonitoredServices)),
		DiskPath:          firstNonEmpty(os.Getenv(KeyDiskPath), DefaultDiskPath),
		TailLogPath:       firstNonEmpty(os.Getenv(KeyTailLogPath), DefaultTailLogPath),
		TailLogLines:      DefaultTailLogLines,
		ConsoleEnabled:    true,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	ownerRaw := strings.TrimSpace(os.Getenv(KeyBotOwner))
	if ownerRaw == "" {
		missing = append(missing, KeyBotOwner)
	} else {
		ownerID, parseErr := parseUserID(ownerRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBotOwner, parseErr)
		}
		cfg.BotOwnerID = ownerID
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.AuthorizedUsers, err = parseUserIDs(os.Getenv(KeyAuthorizedUsers)); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyAuthorizedUsers, err)
	}
	if cfg.AdminUsers, err = parseUserIDs(os.Getenv(KeyAdminUsers)); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminUsers, err)
	}

	if cfg.MongoURI != "" {
		if !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
			return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			cfg.MongoDB = DefaultMongoDBProd
			if cfg.IsDevelopment() {
				cfg.MongoDB = DefaultMongoDBDev
			}
		}
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	linesRaw := strings.TrimSpace(os.Getenv(KeyTailLogLines))
	if linesRaw != "" {
		lines, parseErr := strconv.Atoi(linesRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyTailLogLines, parseErr)
		}
		if lines <= 0 || lines > maxTailLogLines {
			return Config{}, fmt.Errorf("%s must be between 1 and %d", KeyTailLogLines, maxTailLogLines)
		}
		cfg.TailLogLines = lines
	}

	consoleRaw := strings.TrimSpace(os.Getenv(KeyConsoleEnabled))
	if consoleRaw != "" {
		enabled, parseErr := strconv.ParseBool(consoleRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyConsoleEnabled, parseErr)
		}
		cfg.ConsoleEnabled = enabled
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// PersistenceEnabled reports whether a MongoDB mirror should be used.
func (c Config) PersistenceEnabled() bool {
	return c.MongoURI != ""
}

// FormatRedacted renders the configuration for display with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"telegram_token: " + redactToken(cfg.TelegramToken),
		"bot_owner: " + strconv.FormatInt(cfg.BotOwnerID, 10),
		"authorized_users: " + joinIDs(cfg.AuthorizedUsers),
		"admin_users: " + joinIDs(cfg.AdminUsers),
		"mongo_uri: " + redactURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"log_file: " + cfg.LogFile,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"monitored_services: " + strings.Join(cfg.MonitoredServices, ","),
		"disk_path: " + cfg.DiskPath,
		"tail_log_path: " + cfg.TailLogPath,
		"tail_log_lines: " + strconv.Itoa(cfg.TailLogLines),
		"console_enabled: " + strconv.FormatBool(cfg.ConsoleEnabled),
	}

	return strings.Join(lines, "\n")
}

func redactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "redacted"
	}
	return token[:4] + "...redacted"
}

func redactURI(uri string) string {
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd < 0 {
		return uri
	}

	rest := uri[schemeEnd+3:]
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}

	return uri[:schemeEnd+3] + rest[at+1:]
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id < 0 {
		return 0, fmt.Errorf("user id %d must not be negative", id)
	}
	return id, nil
}

func parseUserIDs(raw string) ([]int64, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, nil
	}

	seen := make(map[int64]struct{}, len(parts))
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := parseUserID(part)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func splitList(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
