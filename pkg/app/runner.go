package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/discord/commands"
	"github.com/small-frappuccino/bruhbot/pkg/discord/events"
	"github.com/small-frappuccino/bruhbot/pkg/discord/session"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
	"github.com/small-frappuccino/bruhbot/pkg/service"
	"github.com/small-frappuccino/bruhbot/pkg/storage"
	"github.com/small-frappuccino/bruhbot/pkg/suggestion"
	"github.com/small-frappuccino/bruhbot/pkg/task"
	"github.com/small-frappuccino/bruhbot/pkg/theme"
	"github.com/small-frappuccino/bruhbot/pkg/util"
)

// AppName is used in log lines and the startup banner.
const AppName = "bruhbot"

// Environment overrides read by the runner.
const (
	EnvConfig   = "BRUHBOT_CONFIG"
	EnvLogLevel = "BRUHBOT_LOG_LEVEL"
	EnvLogDir   = "BRUHBOT_LOG_DIR"
)

// minSweepInterval bounds how often stale join records are swept.
const minSweepInterval = time.Minute

// Run bootstraps the bot and blocks until ctx is cancelled or the process
// receives SIGINT/SIGTERM.
//
// Startup order: logger, config, SQLite store, message lists, task router,
// Discord session (gateway handlers are registered before the connection
// opens so READY is never missed), then slash command sync.
func Run(ctx context.Context, configPath string) error {
	started := time.Now()

	if configPath == "" {
		configPath = util.EnvString(EnvConfig, config.DefaultFileName)
	}
	baseDir := util.BaseDir(configPath)

	// Logger first so subsequent steps can log meaningfully
	if err := SetupLogging(baseDir); err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.InstallDiscordgoBridge(ctx)

	log.ApplicationLogger().Info(formatStartupMessage(AppName, Version))

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, config.ErrTemplateCreated) {
			log.ApplicationLogger().Warn("Config file was missing; a template was written. Fill it in and start again.", "path", configPath)
		}
		return fmt.Errorf("load config: %w", err)
	}
	for _, line := range cfg.Summary() {
		log.ApplicationLogger().Info(line)
	}
	for _, w := range cfg.Warnings {
		log.ApplicationLogger().Warn(w)
	}

	store := storage.NewStore(util.ResolvePath(cfg.BaseDir, cfg.HistoryDB))
	if err := store.Init(); err != nil {
		return fmt.Errorf("initialize SQLite store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.DatabaseLogger().Warn("Failed to close store", "error", err)
		}
	}()
	if attrs, err := previousRun(store); err != nil {
		log.DatabaseLogger().Warn("Failed to read previous run state", "error", err)
	} else {
		log.ApplicationLogger().Info("Previous run", attrs...)
	}
	if err := store.SetMeta("last_start", started); err != nil {
		log.DatabaseLogger().Warn("Failed to record start time", "error", err)
	}

	lists := messages.NewStore(MessagePaths(cfg))
	lists.LoadAll()

	router := task.NewRouter(task.Defaults())
	th := theme.FromConfig(cfg)
	manager := service.NewServiceManager()

	var suggestions *suggestion.Service
	discordSession, err := session.NewDiscordSession(cfg.Token, func(s *discordgo.Session) error {
		sender := events.NewChannelSender(s, cfg.BaseDir)
		outbound := task.NewOutboundAdapters(router, sender, cfg.SendRatePerSecond)
		chicken := events.NewChickenTracker(cfg, store, outbound)
		eventService := events.NewService(s, cfg, lists, outbound, chicken, store)
		suggestions = suggestion.NewService(s, cfg, th, lists, store)

		if err := registerServices(manager, router, lists, chicken, eventService, cfg); err != nil {
			return err
		}
		if err := manager.StartAll(ctx); err != nil {
			return fmt.Errorf("start services: %w", err)
		}
		log.ApplicationLogger().Info("Services running", "services", manager.GetRunningServices())
		return nil
	})
	if err != nil {
		_ = manager.StopAll()
		if errors.Is(err, session.ErrAuthenticationFailed) {
			log.DiscordLogger().Error(loginHelp)
		}
		return fmt.Errorf("create discord session: %w", err)
	}
	if discordSession.State != nil && discordSession.State.User != nil {
		log.DiscordLogger().Info("Authenticated", "user", discordSession.State.User.Username, "id", discordSession.State.User.ID)
	}

	commandHandler := commands.NewCommandHandler(discordSession, cfg, th, lists, suggestions)
	if err := commandHandler.SetupCommands(); err != nil {
		_ = manager.StopAll()
		_ = session.Close(discordSession)
		return fmt.Errorf("configure slash commands: %w", err)
	}

	log.ApplicationLogger().Info(fmt.Sprintf("🎯 %s initialized successfully in %s", AppName, time.Since(started).Round(time.Millisecond)))
	log.ApplicationLogger().Info(fmt.Sprintf("🤖 %s running. Press Ctrl+C to stop...", AppName))

	util.WaitForInterrupt(ctx)
	log.ApplicationLogger().Info(fmt.Sprintf("🛑 Stopping %s...", AppName))

	_ = commandHandler.Shutdown()
	if err := manager.StopAll(); err != nil {
		log.ApplicationLogger().Error("Some services failed to stop cleanly", "error", err)
	}
	if err := session.Close(discordSession); err != nil {
		log.DiscordLogger().Warn("Failed to close Discord session", "error", err)
	}
	return nil
}

// registerServices wires the background services in start order: the task
// router, the gateway handlers, the periodic reload and the join sweeper.
func registerServices(
	manager *service.ServiceManager,
	router *task.TaskRouter,
	lists *messages.Store,
	chicken *events.ChickenTracker,
	eventService *events.Service,
	cfg *config.Config,
) error {
	router.RegisterHandler(task.TaskTypeReloadMessages, lists.ReloadTask)
	router.RegisterHandler(task.TaskTypeSweepMemberJoin, chicken.Sweep)

	var stopReload, stopSweep func()
	sweepEvery := max(cfg.ChickenOutTimeout, minSweepInterval)

	services := []service.Service{
		service.NewFuncService("task_router", service.PriorityHigh,
			nil,
			func(context.Context) error { router.Close(); return nil },
		),
		service.NewFuncService("events", service.PriorityHigh,
			eventService.Start,
			eventService.Stop,
			"task_router",
		),
		service.NewFuncService("message_reloader", service.PriorityNormal,
			func(context.Context) error {
				stopReload = router.ScheduleEvery(cfg.MessageReloadInterval, task.Task{
					Type:    task.TaskTypeReloadMessages,
					Options: task.TaskOptions{GroupKey: "messages"},
				})
				log.ApplicationLogger().Info("Message reload scheduled", "interval", cfg.MessageReloadInterval)
				return nil
			},
			func(context.Context) error {
				if stopReload != nil {
					stopReload()
				}
				return nil
			},
			"task_router",
		),
		service.NewFuncService("join_sweeper", service.PriorityLow,
			func(context.Context) error {
				if !cfg.EnableChickenOut {
					return nil
				}
				if n, err := chicken.Restore(); err != nil {
					log.DatabaseLogger().Warn("Failed to restore member joins", "error", err)
				} else if n > 0 {
					log.ApplicationLogger().Info("Restored member joins", "count", n, "tracked", chicken.Pending())
				}
				stopSweep = router.ScheduleEvery(sweepEvery, task.Task{
					Type:    task.TaskTypeSweepMemberJoin,
					Options: task.TaskOptions{GroupKey: "members"},
				})
				return nil
			},
			func(context.Context) error {
				if stopSweep != nil {
					stopSweep()
				}
				return nil
			},
			"task_router",
		),
	}
	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return fmt.Errorf("register service: %w", err)
		}
	}
	return nil
}

// previousRun returns log attributes describing what the last run left in
// the store: its start, its last heartbeat and the suggestion backlog.
func previousRun(store *storage.Store) ([]any, error) {
	var attrs []any
	lastStart, ok, err := store.GetMeta("last_start")
	if err != nil {
		return nil, err
	}
	if ok {
		attrs = append(attrs, "lastStart", lastStart)
	}
	heartbeat, ok, err := store.GetHeartbeat()
	if err != nil {
		return nil, err
	}
	if ok {
		attrs = append(attrs, "lastHeartbeat", heartbeat)
	}
	counts, err := store.CountSuggestions()
	if err != nil {
		return nil, err
	}
	reviewed := 0
	for status, n := range counts {
		if status != storage.StatusPending {
			reviewed += n
		}
	}
	return append(attrs, "pendingSuggestions", counts[storage.StatusPending], "reviewedSuggestions", reviewed), nil
}

// SetupLogging configures the process logger from the environment. The log
// directory defaults to "logs" next to the config file.
func SetupLogging(baseDir string) error {
	level := slog.LevelInfo
	if v := util.EnvString(EnvLogLevel, ""); v != "" {
		parsed, err := log.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLogLevel, err)
		}
		level = parsed
	}
	dir := util.ResolvePath(baseDir, util.EnvString(EnvLogDir, "logs"))
	if _, err := log.SetupLogger(log.Options{Dir: dir, Level: level}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	return nil
}

// MessagePaths resolves the four list files against the config directory.
func MessagePaths(cfg *config.Config) map[messages.Category]string {
	resolve := func(p string) string {
		if p == "" {
			return ""
		}
		return filepath.Clean(util.ResolvePath(cfg.BaseDir, p))
	}
	return map[messages.Category]string{
		messages.Default:      resolve(cfg.DefaultMsgsFile),
		messages.Mention:      resolve(cfg.MentionMsgsFile),
		messages.DefaultAudio: resolve(cfg.DefaultAudioMsgsFile),
		messages.MentionAudio: resolve(cfg.MentionAudioMsgsFile),
	}
}

const loginHelp = "Discord rejected the token. Check that TOKEN (or BRUHBOT_TOKEN) holds the bot token " +
	"from the developer portal and that the Message Content and Server Members intents are enabled."

func formatStartupMessage(appName, version string) string {
	appName = strings.TrimSpace(appName)
	version = strings.TrimSpace(version)
	if version == "" || version == "dev" {
		return fmt.Sprintf("🚀 Starting %s...", appName)
	}
	return fmt.Sprintf("🚀 Starting %s %s...", appName, version)
}
