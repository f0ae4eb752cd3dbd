package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/worldkeeper/worldkeeper/internal/backup"
	"github.com/worldkeeper/worldkeeper/internal/config"
	"github.com/worldkeeper/worldkeeper/internal/event"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/internal/scheduler"
	"github.com/worldkeeper/worldkeeper/internal/server"
	"github.com/worldkeeper/worldkeeper/internal/storage"
	"github.com/worldkeeper/worldkeeper/internal/world"
)

var (
	servePort     int
	serveHostname string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the world runtime and HTTP admin API",
	Long: `Start worldkeeper with idle unloading, automatic backups, the
world importer and the HTTP admin API.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHostname != "" {
		cfg.Server.Hostname = serveHostname
	}
	if cfg.Backup.Storage != "" && cfg.Backup.Storage != "local" {
		return fmt.Errorf("unsupported backup storage %q", cfg.Backup.Storage)
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}
	worldsDir, backupsDir := paths.Resolve(cfg)

	logging.Info().Str("version", Version).Str("worlds", worldsDir).Str("backups", backupsDir).
		Str("logFile", logging.LogFile()).Msg("starting worldkeeper")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New()
	schedCtx, stopSched := context.WithCancel(context.Background())
	defer func() {
		stopSched()
		<-sched.Done()
	}()
	go sched.Run(schedCtx)

	fs := afero.NewOsFs()
	hostSrv := host.NewServer(host.Config{
		Container:   worldsDir,
		Templates:   paths.TemplatesDir(),
		DataVersion: cfg.Server.DataVersion,
		Fs:          fs,
	}, sched)

	bus := event.NewBus()
	defer bus.Close()
	bus.SubscribeAll(func(e event.Event) {
		logging.Debug().Str("type", string(e.Type)).Msg("lifecycle event")
	})

	store := storage.New(paths.StoragePath())
	registry := world.NewRegistry(store, fs, worldsDir)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("load world registry: %w", err)
	}
	spawn := world.NewSpawn(store, hostSrv, cfg.Spawn)
	if err := spawn.Load(ctx); err != nil {
		return fmt.Errorf("load spawn: %w", err)
	}

	manager, err := world.NewManager(world.Options{
		Server:    hostSrv,
		Scheduler: sched,
		Bus:       bus,
		Registry:  registry,
		Spawn:     spawn,
		Config:    cfg,
	})
	if err != nil {
		return err
	}
	if err := sched.Call(ctx, func() { startWorlds(manager) }); err != nil {
		return err
	}

	backups := backup.NewService(manager, backup.NewLocalStorage(fs, backupsDir), cfg.Backup)
	backups.Start()

	var importer *world.Importer
	if cfg.Importer.Enabled {
		importer, err = world.NewImporter(registry, bus)
		if err != nil {
			logging.Warn().Err(err).Msg("world importer disabled")
		} else {
			importer.Start()
		}
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Port = cfg.Server.Port
	srvCfg.Hostname = cfg.Server.Hostname
	srv := server.New(srvCfg, manager, backups, importer)

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Msgf("server listening on http://%s:%d", srvCfg.Hostname, srvCfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
	case runErr = <-errCh:
		logging.Error().Err(runErr).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logging.Warn().Err(shutdownErr).Msg("server shutdown error")
	}
	backups.Stop()
	if importer != nil {
		if stopErr := importer.Stop(); stopErr != nil {
			logging.Warn().Err(stopErr).Msg("importer shutdown error")
		}
	}

	var saveErr error
	if callErr := sched.Call(shutdownCtx, func() { saveErr = manager.Shutdown() }); callErr != nil {
		saveErr = callErr
	}
	if saveErr != nil {
		logging.Error().Err(saveErr).Msg("failed to save worlds")
	}

	logging.Info().Msg("worldkeeper stopped")
	return runErr
}

// startWorlds begins idle tracking for every registered world and loads
// the spawn world. It runs on the main context.
func startWorlds(manager *world.Manager) {
	manager.ManageAll()

	name := manager.Spawn().WorldName()
	if name == "" {
		return
	}
	w, err := manager.Registry().Get(name)
	if err != nil {
		logging.Warn().Err(err).Str("world", name).Msg("spawn world is not registered")
		return
	}
	if _, err := manager.Loader().Load(w); err != nil {
		logging.Warn().Err(err).Str("world", name).Msg("failed to load spawn world")
	}
}
