// Command waclient is a demo CLI exercising the connection engine end
// to end: dial, watch state transitions, and issue one-off queries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/brinkwave/wawire"
	"github.com/brinkwave/wawire/internal/config"
	"github.com/brinkwave/wawire/internal/logging"
	"github.com/brinkwave/wawire/internal/metrics"
)

var (
	Version    = "dev"
	dotenvPath string
	jsonConfig string
	queryJSON  string
)

var rootCmd = &cobra.Command{
	Use:     "waclient",
	Short:   "Demo client for the wawire connection engine",
	Version: Version,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Dial the configured edge and log connection lifecycle events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, log, err := buildConnection()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		subscribeLifecycle(conn, log)

		if err := conn.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		<-ctx.Done()
		return conn.Close(context.Background())
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Connect, issue one query, print the reply, and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, log, err := buildConnection()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		subscribeLifecycle(conn, log)

		if err := conn.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}

		var payload any
		if queryJSON == "" {
			payload = []any{"admin", "test"}
		} else if err := json.Unmarshal([]byte(queryJSON), &payload); err != nil {
			return fmt.Errorf("--query is not valid JSON: %w", err)
		}

		q := wawire.NewQuery(payload)
		q.Expect2xx = true
		q.TimeoutMs = 10_000
		reply, err := conn.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		out, _ := json.MarshalIndent(reply, "", "  ")
		fmt.Println(string(out))
		return conn.Close(context.Background())
	},
}

func buildConnection() (*wawire.Connection, logging.Logger, error) {
	cfg, err := config.Load(dotenvPath, jsonConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	opts := config.LoadOptions()
	maxIdle, cooldown, phoneResponse := opts.AsDurations()

	log := logging.NewJSON(logging.LevelFromString(cfg.LogLevel))
	log.Info("wawire: dialing", "url", cfg.ControlURL)

	var header http.Header
	if cfg.AuthToken != "" {
		header = http.Header{"Authorization": {"Bearer " + cfg.AuthToken}}
	}

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, log)
	}

	conn := wawire.NewConnection(
		cfg.ControlURL,
		header,
		wawire.ConnectOptions{
			MaxIdleMs:         int(maxIdle.Milliseconds()),
			MaxRetries:        opts.MaxRetries,
			ConnectCooldownMs: int(cooldown.Milliseconds()),
			PhoneResponseMs:   int(phoneResponse.Milliseconds()),
			AlwaysUseTakeover: opts.AlwaysUseTakeover,
		},
		wawire.OnAllErrors,
		nil,
		collector,
		log,
	)
	return conn, log, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info("wawire: metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("wawire: metrics server stopped", "error", err)
	}
}

func subscribeLifecycle(conn *wawire.Connection, log logging.Logger) {
	conn.Bus().On("open", func(any) { log.Info("wawire: open") })
	conn.Bus().On("close", func(payload any) { log.Info("wawire: close", "payload", payload) })
	conn.Bus().On("connection-phone-change", func(payload any) { log.Info("wawire: phone-change", "payload", payload) })
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dotenvPath, "env-file", ".env", "path to an optional .env file")
	rootCmd.PersistentFlags().StringVar(&jsonConfig, "config", "", "path to an optional JSON config file")
	queryCmd.Flags().StringVar(&queryJSON, "query", "", `JSON query payload, e.g. '["admin","test"]'`)

	rootCmd.AddCommand(connectCmd, queryCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
