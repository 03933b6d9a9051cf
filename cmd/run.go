package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/camera"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/log"
	"github.com/kozaktomas/rollcall/internal/orchestrator"
	"github.com/kozaktomas/rollcall/internal/recognize"
	"github.com/kozaktomas/rollcall/internal/reconcile"
	"github.com/kozaktomas/rollcall/internal/schedule"
	"github.com/kozaktomas/rollcall/internal/web"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the attendance daemon",
	Long: `Run the attendance marking loop.
The daemon polls the timetable, keeps the camera open while a class is
in session, marks every recognized student present and serves status
and metrics endpoints over HTTP.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("migrate", false, "Apply pending database migrations before starting")
}

// buildLoop wires the recognition pipeline around the store and camera.
func buildLoop(cfg *config.Config, store migratableStore, loader *gallery.Loader, source *camera.Manager) (*orchestrator.Orchestrator, error) {
	engine, err := recognize.NewEngine(recognize.EngineConfig{
		Provider:  cfg.Engine.Provider,
		URL:       cfg.Engine.URL,
		Timeout:   cfg.Engine.Timeout,
		ModelsDir: cfg.Engine.ModelsDir,
	})
	if err != nil {
		return nil, fmt.Errorf("creating face engine: %w", err)
	}

	loop := orchestrator.New(
		orchestrator.Config{
			IdlePollInterval: cfg.Tuning.Orchestrator.IdlePollInterval.Std(),
			FrameInterval:    cfg.Tuning.Orchestrator.FrameInterval.Std(),
			OpTimeout:        cfg.Tuning.Orchestrator.OpTimeout.Std(),
		},
		orchestrator.Deps{
			Source:   source,
			Resolver: schedule.NewResolver(store),
			Gallery:  loader,
			Recognizer: recognize.New(engine, recognize.Config{
				MatchThreshold: cfg.Tuning.Recognizer.MatchThreshold,
				FrameMaxEdge:   cfg.Tuning.Recognizer.FrameMaxEdge,
			}),
			Reconciler: reconcile.New(cfg.Tuning.Reconciler.DebounceCooldown.Std()),
			Writer:     attendance.NewWriter(store),
			Activity:   store,
		},
	)
	return loop, nil
}

// reloadGalleryOnSIGHUP refreshes registered faces without a restart, so
// newly registered students are picked up by a running daemon.
func reloadGalleryOnSIGHUP(ctx context.Context, loader *gallery.Loader) {
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			log.Info("SIGHUP received, reloading gallery")
			if _, err := loader.Load(ctx); err != nil {
				log.Errorf("gallery reload failed, keeping previous snapshot", err)
			}
		}
	}()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if mustGetBool(cmd, "migrate") {
		fmt.Println("Applying database migrations...")
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
	}

	loader := gallery.NewLoader(store)
	g, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}
	fmt.Printf("Gallery loaded: %d registered students\n", g.Size())

	source := camera.NewManager(camera.Config{
		Backends:      cfg.Camera.Backends,
		URL:           cfg.Camera.URL,
		Device:        cfg.Camera.Device,
		Path:          cfg.Camera.Path,
		ReadTimeout:   cfg.Tuning.Camera.ReadTimeout.Std(),
		RetryDelay:    cfg.Tuning.Camera.RetryDelay.Std(),
		MaxRetryDelay: cfg.Tuning.Camera.MaxRetryDelay.Std(),
		Dedupe:        cfg.Camera.Dedupe,
	})

	loop, err := buildLoop(cfg, store, loader, source)
	if err != nil {
		return err
	}

	var server *web.Server
	if cfg.Web.ListenAddr != "" {
		server = web.NewServer(cfg.Web.ListenAddr, loop, store)
		go func() {
			if err := server.Start(); err != nil {
				log.Errorf("status server failed", err)
			}
		}()
		fmt.Printf("Status server listening on %s\n", cfg.Web.ListenAddr)
	}

	reloadGalleryOnSIGHUP(ctx, loader)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		if server != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				fmt.Printf("Error during shutdown: %v\n", err)
			}
		}
		cancel()
	}()

	fmt.Println("Watching the timetable, camera starts with the next class")
	fmt.Println("Press Ctrl+C to stop")

	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("attendance loop: %w", err)
	}
	return nil
}
