// Package main provides the bot entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/discbox/internal/app/command"
	"github.com/osa030/discbox/internal/app/queue"
	"github.com/osa030/discbox/internal/app/router"
	"github.com/osa030/discbox/internal/infra/config"
	"github.com/osa030/discbox/internal/infra/discord"
	"github.com/osa030/discbox/internal/infra/lavalink"
	"github.com/osa030/discbox/internal/infra/logger"
)

var (
	app        = kingpin.New("discbox", "discbox Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/bot.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if cmd == checkConfigCmd.FullCommand() {
		fmt.Println("config OK")
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		os.Exit(1)
	}
}

// run executes the main bot logic. Using a separate function ensures defer
// statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	bot, err := discord.New(cfg.Discord)
	if err != nil {
		return fmt.Errorf("failed to create gateway session: %w", err)
	}

	engine, err := lavalink.NewClient(bot, cfg.Audio.Nodes)
	if err != nil {
		return fmt.Errorf("failed to create audio client: %w", err)
	}

	registry := queue.NewRegistry(engine, queue.Config{
		NowPlayingFormat: cfg.Messages.NowPlaying,
		DecodeTimeout:    cfg.DecodeTimeout(),
	})

	handlers := command.NewHandlers(registry, engine, command.Config{
		Messages: command.Messages{
			NotInGuild:     cfg.Messages.NotInGuild,
			NoVoiceChannel: cfg.Messages.NoVoiceChannel,
			SessionExists:  cfg.Messages.SessionExists,
			WrongChannel:   cfg.Messages.WrongChannel,
			NothingFound:   cfg.Messages.NothingFound,
			Queued:         cfg.Messages.Queued,
			QueuedPlaylist: cfg.Messages.QueuedPlaylist,
			Connected:      cfg.Messages.Connected,
			GenericError:   cfg.Messages.DefaultError,
		},
		DefaultSource:  cfg.Playback.DefaultSource,
		ResolveTimeout: cfg.ResolveTimeout(),
	})

	bot.Bind(handlers, router.New(registry), engine)

	zlog.Info().Msgf("Connecting to gateway: audio=%s", engine)
	if err := bot.Open(); err != nil {
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Info().Msg("Received shutdown signal...")

	// Tear down live queues first so voice sessions disconnect cleanly,
	// then drop the node pool and the gateway.
	registry.Close()
	engine.Close()
	if err := bot.Close(); err != nil {
		zlog.Error().Msgf("Failed to close gateway session: %v", err)
	}

	zlog.Info().Msg("Bot stopped")
	return nil
}
