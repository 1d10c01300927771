package config

import (
	"fmt"
	"time"
)

// Config is the single configuration structure for the multicore runtime.
// Sections map one-to-one onto the packages they configure.
type Config struct {
	// Pool settings control worker thread counts and dispatch behaviour
	Pool PoolConfig `yaml:"pool" json:"pool" mapstructure:"pool"`

	// Heap settings control the per-thread slab allocator
	Heap HeapConfig `yaml:"heap" json:"heap" mapstructure:"heap"`

	// Logging settings for the global zap logger
	Logging LoggingConfig `yaml:"logging" json:"logging" mapstructure:"logging"`

	// Metrics settings for the Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`

	// Tracing settings for OpenTelemetry spans
	Tracing TracingConfig `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
}

// PoolConfig contains thread pool settings.
type PoolConfig struct {
	// MaxThreads caps the threads used by one pool (0 = unbounded)
	MaxThreads int `yaml:"max_threads" json:"max_threads" mapstructure:"max_threads"`
	// MaxCores caps the threads used by every pool in the process (0 = unbounded)
	MaxCores int `yaml:"max_cores" json:"max_cores" mapstructure:"max_cores"`
	// Processors overrides the detected logical processor count (0 = detect)
	Processors int `yaml:"processors" json:"processors" mapstructure:"processors"`
	// ProcessorTargeting pins worker threads to processors
	ProcessorTargeting bool `yaml:"processor_targeting" json:"processor_targeting" mapstructure:"processor_targeting"`
	// PollInterval is the sleep between completion checks while waiting on workers
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" mapstructure:"poll_interval"`
	// SpinPolls is the number of yield-only polls before sleeping
	SpinPolls int `yaml:"spin_polls" json:"spin_polls" mapstructure:"spin_polls"`
}

// HeapConfig contains slab allocator settings.
type HeapConfig struct {
	// ChunkSize is the allocation granularity in bytes
	ChunkSize int `yaml:"chunk_size" json:"chunk_size" mapstructure:"chunk_size"`
	// BlockChunks is the number of chunks in one block
	BlockChunks int `yaml:"block_chunks" json:"block_chunks" mapstructure:"block_chunks"`
	// GuardBands writes a sentinel after every allocation and checks it on free
	GuardBands bool `yaml:"guard_bands" json:"guard_bands" mapstructure:"guard_bands"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level       string   `yaml:"level" json:"level" mapstructure:"level"`
	Encoding    string   `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
	Development bool     `yaml:"development" json:"development" mapstructure:"development"`
	OutputPaths []string `yaml:"output_paths" json:"output_paths" mapstructure:"output_paths"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled turns on the /metrics endpoint in the CLI
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	// ListenAddress is the address the metrics server binds to
	ListenAddress string `yaml:"listen_address" json:"listen_address" mapstructure:"listen_address"`
	// Path is the HTTP path metrics are served on
	Path string `yaml:"path" json:"path" mapstructure:"path"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	ServiceName    string  `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
	ServiceVersion string  `yaml:"service_version" json:"service_version" mapstructure:"service_version"`
	SamplingRate   float64 `yaml:"sampling_rate" json:"sampling_rate" mapstructure:"sampling_rate"`
	PrettyPrint    bool    `yaml:"pretty_print" json:"pretty_print" mapstructure:"pretty_print"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxThreads:         0,
			MaxCores:           0,
			Processors:         0,
			ProcessorTargeting: false,
			PollInterval:       20 * time.Microsecond,
			SpinPolls:          64,
		},
		Heap: HeapConfig{
			ChunkSize:   16,
			BlockChunks: 4096,
			GuardBands:  false,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9464",
			Path:          "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "multicore",
			ServiceVersion: "0.1.0",
			SamplingRate:   1.0,
		},
	}
}

// Validate validates the configuration for correctness.
// It checks that values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Pool.MaxThreads < 0 {
		return fmt.Errorf("pool.max_threads cannot be negative")
	}
	if c.Pool.MaxCores < 0 {
		return fmt.Errorf("pool.max_cores cannot be negative")
	}
	if c.Pool.Processors < 0 {
		return fmt.Errorf("pool.processors cannot be negative")
	}
	if c.Pool.PollInterval < 0 {
		return fmt.Errorf("pool.poll_interval cannot be negative")
	}
	if c.Pool.SpinPolls < 0 {
		return fmt.Errorf("pool.spin_polls cannot be negative")
	}
	if err := c.Heap.Validate(); err != nil {
		return err
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be within [0, 1]")
	}
	return nil
}

// Validate checks heap settings. The chunk size must be a power of two no
// smaller than 8 so allocations stay word aligned.
func (h *HeapConfig) Validate() error {
	if h.ChunkSize < 8 || h.ChunkSize&(h.ChunkSize-1) != 0 {
		return fmt.Errorf("heap.chunk_size must be a power of two >= 8, got %d", h.ChunkSize)
	}
	if h.BlockChunks <= 0 {
		return fmt.Errorf("heap.block_chunks must be positive")
	}
	return nil
}

// BlockBytes returns the size of one block in bytes.
func (h *HeapConfig) BlockBytes() int {
	return h.ChunkSize * h.BlockChunks
}
