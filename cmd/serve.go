package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/capacity-cli/internal/api"
	"github.com/sells-group/capacity-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recomputation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		handler, err := buildAPI(cmd, st)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildAPI wires the API server from configuration. st may be nil.
func buildAPI(cmd *cobra.Command, st store.Store) (http.Handler, error) {
	cat, err := serviceCatalog(cmd)
	if err != nil {
		return nil, err
	}
	reprojector, err := initReprojector()
	if err != nil {
		return nil, err
	}

	srv := api.New(api.Options{
		Catalog:     cat,
		Store:       st,
		Reprojector: reprojector,
		Defaults: api.Defaults{
			Params:           cfg.Capacity.Params,
			Service:          cfg.Capacity.Service,
			SourceEPSG:       cfg.Capacity.SourceEPSG,
			CapacityColumn:   cfg.Capacity.CapacityColumn,
			PopulationColumn: cfg.Capacity.PopulationColumn,
			BlockIDColumn:    cfg.Capacity.BlockIDColumn,
		},
		CORSOrigins:  cfg.Server.CORSOrigins,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		MaxBodyBytes: int64(cfg.Server.MaxBodyMB) << 20,
		Timeout:      time.Duration(cfg.Server.TimeoutSecs) * time.Second,
	})
	return srv.Handler(), nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().String("catalog", "", "service catalog file (YAML or JSON)")
	rootCmd.AddCommand(serveCmd)
}
