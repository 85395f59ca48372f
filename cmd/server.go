// Copyright © 2018 Enrico Stahn <enrico.stahn@gmail.com>
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/perfwatcher/pw-queryd/config"
	"github.com/perfwatcher/pw-queryd/fsnamesource"
	"github.com/perfwatcher/pw-queryd/handlers"
	"github.com/perfwatcher/pw-queryd/jsonrpc"
	"github.com/perfwatcher/pw-queryd/queryserver"
	"github.com/perfwatcher/pw-queryd/selfmetrics"
	"github.com/perfwatcher/pw-queryd/snapshot"
)

// metricsEndpoint is the only server flag not part of config.Config
// (it is a path, not one of spec.md §6's recognized keys).
var metricsEndpoint string

// serverCmd runs the full request-processing engine (C1-C7): the
// snapshot cache, the JSON-RPC HTTP front-end, and the periodic tick
// that refreshes the cache and publishes self-metrics.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the pw-queryd JSON-RPC query server",
	Long: `"server" starts the HTTP front-end on --port and serves pw_get_status,
pw_get_metric, and the directory-listing RPCs against --datadir. A
second listener on --metricslistenaddress exposes Prometheus
self-metrics.`,
	RunE: runServer,
}

func init() {
	RootCmd.AddCommand(serverCmd)

	def := config.Default()
	serverCmd.Flags().Int("port", 0, "HTTP port for the JSON-RPC endpoint [1,65535] (required).")
	serverCmd.Flags().Int("maxclients", def.MaxClients, "Maximum number of concurrent HTTP clients (admission cap) [1,65535].")
	serverCmd.Flags().Int("jsonrpccacheexpirationtime", def.JsonrpcCacheExpirationTime, "Snapshot cache expiration, in seconds [1,3600].")
	serverCmd.Flags().String("datadir", def.DataDir, "Root of the host/plugin/type data directory hierarchy.")
	serverCmd.Flags().String("metricslistenaddress", def.MetricsListenAddress, "Address on which to expose self-metrics and a landing page.")
	serverCmd.Flags().Int("tickinterval", def.TickInterval, "Periodic tick interval, in seconds [1,3600].")
	serverCmd.Flags().StringVar(&metricsEndpoint, "web.telemetry-path", "/metrics", "Path under which to expose self-metrics.")

	for _, name := range []string{"port", "maxclients", "jsonrpccacheexpirationtime", "datadir", "metricslistenaddress", "tickinterval"} {
		if err := viper.BindPFlag(name, serverCmd.Flags().Lookup(name)); err != nil {
			log.Error(err)
		}
	}

	envs := map[string]string{
		"PWQUERYD_PORT":                       "port",
		"PWQUERYD_MAXCLIENTS":                 "maxclients",
		"PWQUERYD_JSONRPCCACHEEXPIRATIONTIME": "jsonrpccacheexpirationtime",
		"PWQUERYD_DATADIR":                    "datadir",
		"PWQUERYD_METRICSLISTENADDRESS":       "metricslistenaddress",
		"PWQUERYD_TICKINTERVAL":               "tickinterval",
		"PWQUERYD_WEB_TELEMETRY_PATH":         "web.telemetry-path",
	}
	mapEnvVars(envs, serverCmd)
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	source := fsnamesource.New(cfg.DataDir)
	cache := snapshot.New(source, time.Duration(cfg.JsonrpcCacheExpirationTime)*time.Second)

	env := &handlers.Env{Cache: cache, DataDir: cfg.DataDir}
	registry := jsonrpc.NewRegistry()
	env.Register(registry)

	srv := queryserver.NewServer(jsonrpc.NewCodec(registry), cfg.MaxClients)

	if err := cache.Refresh(context.Background(), time.Now()); err != nil {
		log.Errorf("pw-queryd: initial snapshot refresh: %v", err)
	}

	collector := selfmetrics.NewCollector(selfmetrics.Source{
		Counters: func() selfmetrics.CounterStats {
			s := srv.Counters.Stats()
			return selfmetrics.CounterStats{
				Active:         s.Active,
				NewConnections: s.NewConnections,
				Success:        s.Success,
				Failure:        s.Failure,
			}
		},
		SnapshotStats: func() selfmetrics.SnapshotStats {
			s := cache.Stats()
			refs := append([]int32(nil), s.Refs[:]...)
			return selfmetrics.SnapshotStats{ReadyCount: s.ReadyCount, Refs: refs, CurrentCount: s.CurrentCount}
		},
	})
	prometheus.MustRegister(collector)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rpcAddr := fmt.Sprintf(":%d", cfg.Port)
	rpcHTTP := &http.Server{
		Addr:         rpcAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle(metricsEndpoint, promhttp.Handler())
	metricsMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
		 <head><title>pw-queryd</title></head>
		 <body>
		 <h1>pw-queryd</h1>
		 <p><a href='` + metricsEndpoint + `'>Metrics</a></p>
		 </body>
		 </html>`))
	})
	metricsHTTP := &http.Server{
		Addr:         cfg.MetricsListenAddress,
		Handler:      metricsMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("pw-queryd: serving JSON-RPC on %s against datadir %q", rpcAddr, cfg.DataDir)
		if err := rpcHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Infof("pw-queryd: serving self-metrics on %s%s", cfg.MetricsListenAddress, metricsEndpoint)
		if err := metricsHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return runTick(gctx, cache, time.Duration(cfg.TickInterval)*time.Second)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := rpcHTTP.Shutdown(shutdownCtx); err != nil {
			log.Errorf("pw-queryd: rpc server shutdown: %v", err)
		}
		if err := metricsHTTP.Shutdown(shutdownCtx); err != nil {
			log.Errorf("pw-queryd: metrics server shutdown: %v", err)
		}
		log.Info("pw-queryd: shutting down")
		return nil
	})

	return g.Wait()
}

// runTick drives C7: on each interval, refresh the snapshot cache
// (spec.md §4.7 step 2 — step 1's self-metrics publication happens
// passively, via collector pulling Stats() on promhttp scrape rather
// than a push per tick).
func runTick(ctx context.Context, cache *snapshot.Cache, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := cache.Refresh(ctx, now); err != nil {
				log.Errorf("pw-queryd: snapshot refresh: %v", err)
			}
		}
	}
}
