package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"diary/internal/auth"
	"diary/internal/db"
	httpapi "diary/internal/http"
	"diary/internal/jobs"
	"diary/internal/ratelimit"
)

const (
	shutdownTimeout = 10 * time.Second
	limiterIdleTTL  = 10 * time.Minute
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the body reclaim worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if !skipMigrate {
				if err := db.AutoMigrateAndIndexes(a.db); err != nil {
					return err
				}
			}
			return serve(ctx, a)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not migrate the schema on start")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	deps := httpapi.Deps{
		DB:        a.db,
		JWT:       auth.NewJWT(a.cfg.JWTSecret, a.cfg.JWTTTL),
		Validator: a.validator,
		Notes:     a.notes,
		Tags:      a.tags,
		Log:       a.log,
	}
	if a.cfg.RateLimitRPS > 0 {
		limiter := ratelimit.New(a.cfg.RateLimitRPS, a.cfg.RateLimitBurst, limiterIdleTTL)
		go limiter.RunSweeper(time.Minute, ctx.Done())
		deps.Limiter = limiter
	}

	workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
	workerDone := make(chan struct{})
	if a.files != nil {
		w := jobs.NewWorker(a.reclaims, a.files, a.cfg.ReclaimInterval, a.log)
		go func() {
			defer close(workerDone)
			w.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(a.cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", a.cfg.HTTPAddr, "body_storage", a.cfg.BodyStorage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http shutdown", "error", err)
	}
	cancelWorker()
	<-workerDone
	return serveErr
}
