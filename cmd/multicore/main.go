package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/logger"
	"github.com/ajitpratap0/multicore/pkg/observability"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

var version = "0.1.0"

// app carries the state shared by every subcommand.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	log        *zap.Logger
	registry   *threadpool.Registry
	metricsSrv *http.Server
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{v: viper.New()}
	err := a.rootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "multicore",
		Short: "multicore - per-owner thread pools with thread-local heaps",
		Long: `multicore drives OS-thread-locked worker pools, one per owning loop.
Each dispatch splits work into one shard per worker, and every worker
allocates from its own slab heap.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to a YAML configuration file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("trace", false, "Export dispatch spans to stderr")
	flags.Int("processors", 0, "Override the detected logical processor count")
	flags.Bool("metrics", false, "Serve Prometheus metrics while the command runs")
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("tracing.enabled", flags.Lookup("trace"))
	_ = a.v.BindPFlag("pool.processors", flags.Lookup("processors"))
	_ = a.v.BindPFlag("metrics.enabled", flags.Lookup("metrics"))

	root.AddCommand(
		versionCommand(),
		a.infoCommand(),
		a.benchCommand(),
		a.sortCommand(),
		a.heapCommand(),
	)
	return root
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("multicore v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// setup loads the configuration and starts the logger, tracing and the
// metrics endpoint.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
		OutputPaths: cfg.Logging.OutputPaths,
	}); err != nil {
		return err
	}
	a.log = logger.Named("cli").With(zap.String("command", cmd.Name()))

	if err := observability.Initialize(cfg.Tracing, os.Stderr); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		a.startMetrics()
	}

	a.registry = threadpool.NewRegistry(cfg, threadpool.NewSettings(), logger.Get())
	return nil
}

func (a *app) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.Handler())
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Metrics.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics",
		zap.String("address", a.cfg.Metrics.ListenAddress),
		zap.String("path", a.cfg.Metrics.Path))
}

func (a *app) teardown() error {
	if a.registry != nil {
		a.registry.ShutdownAll()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.log.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	if err := observability.Shutdown(ctx); err != nil {
		return err
	}
	_ = logger.Sync()
	return nil
}

// loadConfig layers the defaults, the optional YAML file and MULTICORE_*
// environment variables, then bound flags.
func loadConfig(v *viper.Viper, path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Round-trip through JSON so viper learns every key and env lookups
	// can override it.
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var layered map[string]interface{}
	if err := json.Unmarshal(raw, &layered); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := v.MergeConfigMap(layered); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}

	v.SetEnvPrefix("MULTICORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	out := config.Default()
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("apply overrides: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return out, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
