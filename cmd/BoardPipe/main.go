package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/BoardPipe/internal/api"
	"github.com/BTreeMap/BoardPipe/internal/bot"
	"github.com/BTreeMap/BoardPipe/internal/genai"
	"github.com/BTreeMap/BoardPipe/internal/lockfile"
	"github.com/BTreeMap/BoardPipe/internal/store"
	"github.com/BTreeMap/BoardPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BoardPipe state data
	DefaultStateDir = "/var/lib/boardpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "boardpipe.db"
	// DefaultConfigFileName is looked up in the state directory when BOARDPIPE_CONFIG is unset
	DefaultConfigFileName = "boardpipe.yaml"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	lock, err := lockfile.AcquireLock(flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	app, err := buildAppConfig(flags)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		lock.Release()
		os.Exit(1)
	}
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)
	botOpts := buildBotOptions(flags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping BoardPipe with configured modules")
	slog.Debug("Final configuration", "state_dir", flags.stateDir, "dsn_type", store.DetectDSNType(app.StoreDSN),
		"api_enabled", app.APIEnabled, "fallback", genaiOpts != nil, "timezone", app.Location.String())
	if err := bot.Run(ctx, app, genaiOpts, apiOpts, botOpts...); err != nil {
		slog.Error("BoardPipe failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("BoardPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	TelegramToken    string
	TrelloKey        string
	TrelloToken      string
	TrelloBoardID    string
	SheetsDocID      string
	AnalyticsURL     string
	AnalyticsToken   string
	AnalyticsSources string
	DatabaseURL      string
	StateDir         string
	ConfigPath       string
	TemplatesPath    string
	OpenAIKey        string
	AdminUsernames   string
	ErrorChatID      int64
	Timezone         string
	APIAddr          string
	SendDelay        time.Duration
	FallbackEnabled  bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir        string
	dbDSN           string
	configPath      string
	templatesPath   string
	timezone        string
	apiAddr         string
	openaiKey       string
	admins          string
	errorChatID     int64
	sendDelay       time.Duration
	fallbackEnabled bool

	env Config
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TrelloKey:        os.Getenv("TRELLO_API_KEY"),
		TrelloToken:      os.Getenv("TRELLO_TOKEN"),
		TrelloBoardID:    os.Getenv("TRELLO_BOARD_ID"),
		SheetsDocID:      os.Getenv("SHEETS_DOC_ID"),
		AnalyticsURL:     os.Getenv("ANALYTICS_URL"),
		AnalyticsToken:   os.Getenv("ANALYTICS_TOKEN"),
		AnalyticsSources: os.Getenv("ANALYTICS_SOURCES"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("BOARDPIPE_STATE_DIR"),
		ConfigPath:       os.Getenv("BOARDPIPE_CONFIG"),
		TemplatesPath:    os.Getenv("BOARDPIPE_TEMPLATES"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		AdminUsernames:   os.Getenv("ADMIN_USERNAMES"),
		ErrorChatID:      util.ParseInt64Env("ERROR_CHAT_ID", 0),
		Timezone:         os.Getenv("BOARDPIPE_TIMEZONE"),
		APIAddr:          os.Getenv("API_ADDR"),
		SendDelay:        util.ParseMillisEnv("SEND_DELAY_MS", -1),
		FallbackEnabled:  util.ParseBoolEnv("FALLBACK_ENABLED", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BOARDPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramToken != "",
		"TRELLO_BOARD_ID", config.TrelloBoardID,
		"SHEETS_DOC_ID_SET", config.SheetsDocID != "",
		"ANALYTICS_URL", config.AnalyticsURL,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"BOARDPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"ERROR_CHAT_ID", config.ErrorChatID,
		"BOARDPIPE_TIMEZONE", config.Timezone,
		"API_ADDR", config.APIAddr,
		"FALLBACK_ENABLED", config.FallbackEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	fs := flag.NewFlagSet("BoardPipe", flag.ContinueOnError)
	flags := Flags{env: config}
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for BoardPipe data (overrides $BOARDPIPE_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseURL, "database DSN; empty uses SQLite in the state directory (overrides $DATABASE_URL)")
	fs.StringVar(&flags.configPath, "config", config.ConfigPath, "deployment YAML (overrides $BOARDPIPE_CONFIG)")
	fs.StringVar(&flags.templatesPath, "templates", config.TemplatesPath, "templates YAML overlay (overrides $BOARDPIPE_TEMPLATES)")
	fs.StringVar(&flags.timezone, "timezone", config.Timezone, "IANA time zone for schedules and reminders (overrides $BOARDPIPE_TIMEZONE)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "admin API address; empty disables the API (overrides $API_ADDR)")
	fs.StringVar(&flags.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.admins, "admins", config.AdminUsernames, "comma separated admin usernames (overrides $ADMIN_USERNAMES)")
	fs.Int64Var(&flags.errorChatID, "error-chat-id", config.ErrorChatID, "chat receiving scheduled job failures (overrides $ERROR_CHAT_ID)")
	fs.DurationVar(&flags.sendDelay, "send-delay", config.SendDelay, "pause between batched messages; negative keeps the default (overrides $SEND_DELAY_MS)")
	fs.BoolVar(&flags.fallbackEnabled, "fallback", config.FallbackEnabled, "answer free text in private chats with the AI responder (overrides $FALLBACK_ENABLED)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Default to SQLite in whichever state directory won
	if flags.dbDSN == "" {
		flags.dbDSN = filepath.Join(flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", flags.dbDSN)
	}
	if flags.configPath == "" {
		flags.configPath = filepath.Join(flags.stateDir, DefaultConfigFileName)
	}

	slog.Debug("flags parsed",
		"stateDir", flags.stateDir,
		"dbDSN_set", flags.dbDSN != "",
		"config", flags.configPath,
		"templates", flags.templatesPath,
		"timezone", flags.timezone,
		"apiAddr", flags.apiAddr,
		"errorChatID", flags.errorChatID,
		"fallback", flags.fallbackEnabled)
	return flags, nil
}

// buildAppConfig collects collaborator settings for bot.Run
func buildAppConfig(flags Flags) (bot.AppConfig, error) {
	loc := time.Local
	if flags.timezone != "" {
		l, err := time.LoadLocation(flags.timezone)
		if err != nil {
			return bot.AppConfig{}, fmt.Errorf("invalid timezone %q: %w", flags.timezone, err)
		}
		loc = l
	}
	env := flags.env
	return bot.AppConfig{
		TelegramToken:    env.TelegramToken,
		StoreDSN:         flags.dbDSN,
		ConfigPath:       flags.configPath,
		TemplatesPath:    flags.templatesPath,
		Location:         loc,
		ErrorChatID:      flags.errorChatID,
		SendDelay:        flags.sendDelay,
		TrelloKey:        env.TrelloKey,
		TrelloToken:      env.TrelloToken,
		TrelloBoardID:    env.TrelloBoardID,
		SheetsDocID:      env.SheetsDocID,
		AnalyticsURL:     env.AnalyticsURL,
		AnalyticsToken:   env.AnalyticsToken,
		AnalyticsSources: util.SplitList(env.AnalyticsSources),
		APIEnabled:       flags.apiAddr != "",
	}, nil
}

// buildGenAIOptions constructs GenAI configuration options. It returns nil when the fallback is off.
func buildGenAIOptions(flags Flags) []genai.Option {
	if !flags.fallbackEnabled {
		return nil
	}
	genaiOpts := []genai.Option{}
	if flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	return apiOpts
}

// buildBotOptions constructs dispatcher options
func buildBotOptions(flags Flags) []bot.Option {
	var botOpts []bot.Option
	if admins := util.SplitList(flags.admins); len(admins) > 0 {
		botOpts = append(botOpts, bot.WithAdmins(admins))
	}
	return botOpts
}
