package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/gearbox/internal/automation"
	"github.com/watzon/gearbox/internal/diagnostics"
	"github.com/watzon/gearbox/internal/events"
	"github.com/watzon/gearbox/internal/guild"
	"github.com/watzon/gearbox/internal/history"
	"github.com/watzon/gearbox/internal/metrics"
	"github.com/watzon/gearbox/internal/platform"
	"github.com/watzon/gearbox/internal/quota"
	"github.com/watzon/gearbox/internal/registry"
	"github.com/watzon/gearbox/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// logAlerter routes registry and diagnostics alerts to the log. A real
// deployment can swap in a webhook or pager sink here.
type logAlerter struct{}

func (logAlerter) Alert(name string, issues []string) {
	log.Error().Str("plugin", name).Strs("issues", issues).Msg("plugin validation alert")
}

type healthAlerter struct{}

func (healthAlerter) Alert(check string, consecutive int, err error) {
	log.Error().Err(err).Str("check", check).Int("consecutive", consecutive).Msg("health check escalation")
}

func runBot() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogConfig(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	defer store.Close()

	if cfg.Data.Backup != nil && cfg.Data.Backup.Enabled {
		backend, err := storage.NewS3Backend(ctx, cfg.Data.Backup)
		if err != nil {
			return fmt.Errorf("configuring snapshot backup: %w", err)
		}
		store.SetBackup(backend)
	}

	bus := events.NewBus()

	session, err := platform.NewDiscordSession(&cfg.Bot, bus)
	if err != nil {
		return fmt.Errorf("connecting gateway: %w", err)
	}
	defer session.Close()

	engine, err := automation.NewEngine(&cfg.Automation, store, bus, session)
	if err != nil {
		return fmt.Errorf("starting automation engine: %w", err)
	}

	feed := diagnostics.NewFeed()
	sinks := automation.MultiSink{feed}

	var hist *history.Store
	if cfg.History.Path != "" {
		hist, err = history.Open(&cfg.History)
		if err != nil {
			return fmt.Errorf("opening execution history: %w", err)
		}
		defer hist.Close()
		sinks = append(sinks, hist)
	}
	engine.SetHistory(sinks)

	reg, err := registry.New(&cfg.Registry, store)
	if err != nil {
		return fmt.Errorf("loading plugin registry: %w", err)
	}
	reg.SetAlertSink(logAlerter{})

	guard, err := quota.New(&cfg.Quota)
	if err != nil {
		return fmt.Errorf("configuring command quotas: %w", err)
	}
	defer guard.Stop()

	guilds, err := guild.NewManager(store)
	if err != nil {
		return fmt.Errorf("loading guild settings: %w", err)
	}
	engine.SetMuteCheck(guilds.IsMuted)

	// Command gate: count invocations and drop over-quota ones before any
	// other handler sees them.
	unsubscribe := bus.Subscribe(events.CommandInvoke, func(ctx context.Context, ev *events.Event) error {
		metrics.RecordCommand(false)
		payload, ok := ev.Payload.(*platform.CommandPayload)
		if !ok {
			return nil
		}
		if !guard.Allow(ev.UserID, payload.Command) {
			return fmt.Errorf("command %s over quota for user %s", payload.Command, ev.UserID)
		}
		return nil
	})
	defer unsubscribe()

	var watcher *storage.Watcher
	if cfg.Data.WatchExternal {
		watcher, err = storage.NewWatcher(store, func(name string) {
			if name != "hooks.json" {
				return
			}
			if err := engine.Reload(); err != nil {
				log.Error().Err(err).Msg("reloading hooks after external edit")
			}
		})
		if err != nil {
			return fmt.Errorf("watching data dir: %w", err)
		}
		defer watcher.Close()
	}

	monitor := diagnostics.NewMonitor(&cfg.Diagnostics)
	monitor.SetAlerter(healthAlerter{})
	monitor.Register(diagnostics.StoreCheck(store))
	monitor.Register(diagnostics.GatewayCheck(session, 5*time.Second))
	monitor.Start()
	defer monitor.Stop()

	if cfg.Diagnostics.Enabled {
		admin := diagnostics.NewServer(&cfg.Diagnostics, monitor, feed)
		admin.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := admin.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("admin server shutdown")
			}
		}()
	}

	engine.Start()
	defer engine.Stop()

	if hist != nil {
		go pruneLoop(ctx, hist)
	}

	log.Info().Int("hooks", len(engine.ListHooks(""))).Int("plugins", len(reg.All())).Msg("gearbox running")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

// pruneLoop trims execution history once an hour until shutdown.
func pruneLoop(ctx context.Context, hist *history.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := hist.Prune(ctx); err != nil {
				log.Error().Err(err).Msg("pruning execution history")
			}
		case <-ctx.Done():
			return
		}
	}
}
