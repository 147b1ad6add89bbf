package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/verigrid/questad/internal/config"
	"github.com/verigrid/questad/internal/dispatch"
	"github.com/verigrid/questad/internal/domain"
	"github.com/verigrid/questad/internal/events"
	"github.com/verigrid/questad/internal/jobstore"
	"github.com/verigrid/questad/internal/license"
	"github.com/verigrid/questad/internal/pipeline"
	"github.com/verigrid/questad/internal/protocol"
	"github.com/verigrid/questad/internal/retention"
	"github.com/verigrid/questad/internal/workspace"
	"github.com/verigrid/questad/web/api"
)

var servePort int

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the verification job server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override configured listen port")
	rootCmd.AddCommand(serveCmd)

	checkLicenseCmd := &cobra.Command{
		Use:   "check-license",
		Short: "Probe license availability once and print the result",
		RunE:  runCheckLicense,
	}
	rootCmd.AddCommand(checkLicenseCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if cfg.Jobs.ProjectsRoot == "" {
		return fmt.Errorf("jobs.projects_root must be configured")
	}

	if err := os.MkdirAll(cfg.Jobs.WorkspaceRoot, 0o755); err != nil {
		return fmt.Errorf("creating workspace root: %w", err)
	}

	store, err := jobstore.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker()

	check := license.CommandCheck(cfg.Toolchain.LicenseCheckCommand, cfg.Toolchain.LicenseCheckArgs...)
	gatekeeper := license.New(check, cfg.LicensePollDuration(), func(status domain.LicenseStatus) {
		broker.Publish(events.Event{
			Kind:    events.KindLicenseStatus,
			Payload: protocol.LicenseStatusMessage{License: status},
		})
	})

	workspaces := &workspace.Manager{Root: cfg.Jobs.WorkspaceRoot}

	runner := &pipeline.Runner{
		Toolchain: pipeline.Toolchain{
			Vlog:    cfg.Toolchain.Vlog,
			Vopt:    cfg.Toolchain.Vopt,
			Vsim:    cfg.Toolchain.Vsim,
			Qverify: cfg.Toolchain.Qverify,
		},
		StderrTailLines: cfg.Jobs.StderrTailLines,
	}

	dispatcher, err := dispatch.New(store, gatekeeper, runner, workspaces, broker, dispatch.Config{
		ProjectsRoot: cfg.Jobs.ProjectsRoot,
		Tick:         cfg.DispatchTickDuration(),
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	watcher, err := workspace.NewWatcher(workspaces, dispatcher.HandleWorkspaceChange)
	if err != nil {
		return fmt.Errorf("creating workspace watcher: %w", err)
	}
	dispatcher.SetWatcher(watcher)

	sweeper, err := retention.New(store, workspaces, cfg.Retention.Schedule,
		time.Duration(cfg.Retention.MaxAgeHrs)*time.Hour)
	if err != nil {
		return fmt.Errorf("creating retention sweeper: %w", err)
	}

	server := api.NewServer(dispatcher, store, workspaces, broker,
		cfg.Jobs.ProjectsRoot, cfg.Jobs.DefaultTimeoutSecs)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gatekeeper.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error {
		watcher.Run()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		watcher.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Printf("[questad] listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("[questad] shut down")
	return nil
}

func runCheckLicense(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	check := license.CommandCheck(cfg.Toolchain.LicenseCheckCommand, cfg.Toolchain.LicenseCheckArgs...)
	gatekeeper := license.New(check, cfg.LicensePollDuration(), nil)
	status := gatekeeper.Check(ctx)

	if status.Available {
		fmt.Println("license available")
		return nil
	}
	fmt.Println("license unavailable")
	os.Exit(1)
	return nil
}
