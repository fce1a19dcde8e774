package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/campus/portal/internal/resource"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(a *app) *cobra.Command {
	var interval, duration time.Duration
	var params []string

	cmd := &cobra.Command{
		Use:   "watch <resource>",
		Short: "Poll a resource and print the collection whenever it refreshes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parsePairs(params, "--param")
			if err != nil {
				return err
			}
			if interval == 0 {
				interval = a.cfg.Poll.Interval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			var last time.Time
			var renderErr error
			observe := func(st resource.State) {
				mu.Lock()
				defer mu.Unlock()
				if st.Loading || st.LastUpdated.IsZero() || !st.LastUpdated.After(last) {
					return
				}
				last = st.LastUpdated
				if err := a.render(out, st.Items); err != nil && renderErr == nil {
					renderErr = err
				}
			}

			store, err := a.store(ctx, args[0], resource.WithObserver(observe))
			if err != nil {
				return err
			}

			if a.cfg.Metrics.Enabled {
				srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: metricsMux(a), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error("Metrics server failed", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				a.log.Info("Serving metrics", zap.String("addr", a.cfg.Metrics.Addr))
			}

			a.log.Info("Watching",
				zap.String("role", string(store.Role())),
				zap.String("resource", string(store.Resource())),
				zap.Duration("interval", interval),
			)
			if err := store.Poll(ctx, interval, query); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			return renderErr
		},
	}
	f := cmd.Flags()
	f.DurationVar(&interval, "interval", 0, "Polling interval (default: poll.interval from config)")
	f.DurationVar(&duration, "for", 0, "Stop after this long (default: until interrupted)")
	f.StringArrayVar(&params, "param", nil, "Query parameter k=v sent with every poll (repeatable)")
	return cmd
}

func metricsMux(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}
