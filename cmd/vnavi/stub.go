package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/visanavi/vnavi/internal/api"
	"github.com/visanavi/vnavi/internal/config"
)

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local fixture backend (foreground)",
	Long: `Run a local fixture backend (foreground).

Serves GET /ping and GET /ask on 127.0.0.1 so the client can be exercised in
development mode without the real query service. Documents come from a JSON
fixtures file, or a built-in sample set when none is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		fixtures, _ := cmd.Flags().GetString("fixtures")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		initLogging(cfg.Log.Level)
		if port == 0 {
			port = cfg.Server.StubPort
		}

		docs, err := api.LoadFixtures(fixtures)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr := fmt.Sprintf("127.0.0.1:%d", port)
		srv := &http.Server{
			Addr:    addr,
			Handler: api.NewStubHandler(docs),
		}

		errCh := make(chan error, 1)
		go func() {
			fmt.Fprintf(os.Stderr, "vnavi stub listening on %s (%d documents)\n", addr, len(docs))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "shutting down...")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	stubCmd.Flags().Int("port", 0, "listen port (default from config)")
	stubCmd.Flags().String("fixtures", "", "path to a JSON fixtures file")
}
