package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nhle/orgpulse/internal/app"
	httpapi "github.com/nhle/orgpulse/internal/http"
	"github.com/nhle/orgpulse/internal/http/handler"
	"github.com/nhle/orgpulse/internal/http/router"
	orgsync "github.com/nhle/orgpulse/internal/sync"
)

func (c *cli) serveCmd() *cobra.Command {
	var (
		addr     string
		schedule bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and optionally run transforms on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = c.cfg.HTTP.Addr
			}
			if c.cfg.Log.Level != "debug" && !c.debug {
				gin.SetMode(gin.ReleaseMode)
			}

			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				engine := httpapi.NewEngine(router.Handlers{
					Transform:  handler.NewTransformHandler(a.Orchestrator, c.log),
					Metrics:    handler.NewMetricsHandler(a.Metrics, c.cfg.OrgID, c.log),
					Ingest:     handler.NewIngestHandler(a.Ingester, c.log),
					Prometheus: a.Prometheus.Handler(),
				}, c.log)
				srv := httpapi.NewServer(addr, engine, c.log)

				if schedule {
					sched := orgsync.NewScheduler(a.Orchestrator, c.cfg.Sync.Interval(), c.log)
					sched.Start(ctx)
					defer sched.Stop()

					// SIGHUP starts a round without waiting for the interval.
					hup := make(chan os.Signal, 1)
					signal.Notify(hup, syscall.SIGHUP)
					defer signal.Stop(hup)
					go func() {
						for {
							select {
							case <-ctx.Done():
								return
							case <-hup:
								sched.Trigger()
							}
						}
					}()
				}
				return srv.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default http.addr)")
	cmd.Flags().BoolVar(&schedule, "schedule", true, "run every transformer each sync.interval_sec")
	return cmd
}
