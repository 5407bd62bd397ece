package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"TrackHound/config"
	"TrackHound/logger"
	"TrackHound/server"
)

const shutdownGrace = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP search API",
	Long: `Starts the engine with every configured backing service: MySQL for
history and suggestions, Redis as the shared cache tier, MinIO when
download archival is enabled, and all enabled source adapters.`,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	initLogging(cfg)
	defer logger.Sync()

	rt, err := buildRuntime(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer rt.close()

	opts := server.Options{
		Users: rt.users,
		SQLDB: rt.sqlDB,
		Redis: rt.redis,
	}
	if rt.archive != nil {
		// Assigning a nil *Archiver would make the interface non-nil.
		opts.Archive = rt.archive
	}
	srv := server.New(cfg, rt.engine, opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-errCh
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
