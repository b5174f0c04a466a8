// Command sumo-query runs Sumo Logic searches from the command line and
// writes the results as JSON.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // --time-zone names resolve without a system zoneinfo

	"github.com/Sternrassler/sumo-search-client/pkg/config"
	"github.com/Sternrassler/sumo-search-client/pkg/logging"
	"github.com/Sternrassler/sumo-search-client/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	debug       bool
	logFile     string
	metricsAddr string

	cfg    *config.Config
	logger zerolog.Logger // handed to the library packages
	log    zerolog.Logger // the command's own messages
	stderr io.Writer
	closer func()
}

// shutdowner is the part of *http.Server the closer needs.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &rootOptions{}
	err := newRootCmd(opts).ExecuteContext(ctx)
	opts.close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "sumo-query",
		Short:        "Run Sumo Logic search jobs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.BoolVar(&opts.debug, "debug", false, "log API requests and responses")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to a rotated file instead of stderr")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(newSearchCmd(opts))
	return rootCmd
}

// setup loads the configuration and starts logging and the metrics endpoint.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.debug {
		cfg.HTTP.Debug = true
		cfg.Logging.Level = "debug"
	}
	if o.logFile != "" {
		cfg.Logging.File = o.logFile
	}
	o.cfg = cfg

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Logging.Level)
	logCfg.Pretty = cfg.Logging.Pretty
	logCfg.Output = cmd.ErrOrStderr()
	logCfg.FilePath = cfg.Logging.File
	logCfg.Async = cfg.Logging.Async

	logger, logCloser := logging.Setup(logCfg)
	o.logger = logger
	o.log = logging.NewLogger("cli")
	o.stderr = cmd.ErrOrStderr()

	var server shutdowner
	if s := o.serveMetrics(); s != nil {
		server = s
	}
	o.closer = func() {
		o.shutdown(server, logCloser)
	}
	return nil
}

// shutdown stops server, when set, and then flushes the logs. A failed log
// flush is reported on stderr since the logger is gone by then.
func (o *rootOptions) shutdown(server shutdowner, logs io.Closer) {
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			o.log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	if err := logs.Close(); err != nil {
		fmt.Fprintf(o.stderr, "sumo-query: flush logs: %v\n", err)
	}
}

// close stops the metrics endpoint and flushes logs.
func (o *rootOptions) close() {
	if o.closer != nil {
		o.closer()
	}
}

func (o *rootOptions) serveMetrics() *http.Server {
	if o.metricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              o.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.log.Error().Err(err).Str("addr", o.metricsAddr).Msg("Metrics server failed")
		}
	}()
	o.log.Info().Str("addr", o.metricsAddr).Msg("Serving metrics")
	return server
}
