package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tagyourcity/backend/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the submission collection server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if _, err := st.Ping(ctx); err != nil {
			return eris.Wrap(err, "serve: database unreachable")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		server := api.NewServer(st, api.Options{
			CORSOrigins:     cfg.Server.CORSOrigins,
			RequestTimeout:  time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
			IngestRateLimit: cfg.Server.IngestRatePerMinute,
			MaxBodyBytes:    int64(cfg.Server.MaxBodyMB) << 20,
		})
		router := server.Router()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("environment", cfg.Server.Environment),
			zap.String("database", cfg.Store.Driver),
			zap.Strings("endpoints", []string{
				"GET  /api/health",
				"POST /api/submissions",
				"GET  /api/submissions",
				"GET  /api/submissions/{id}",
				"GET  /api/export/geojson",
				"GET  /api/export/csv",
				"GET  /metrics",
			}),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
