// Package config provides configuration management for the multicore runtime.
//
// A single Config structure holds one section per package: Pool for the
// thread pool, Heap for the slab allocator, and Logging, Metrics and Tracing
// for the ambient stack. Files are YAML; ${VAR} and ${VAR:-default}
// references are substituted from the environment before parsing.
//
// # Usage
//
//	cfg, err := config.LoadFile("multicore.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	registry := threadpool.NewRegistry(cfg, threadpool.DefaultSettings(), logger.Get())
//
// # Example file
//
//	pool:
//	  max_threads: 8
//	  processor_targeting: ${PIN_THREADS:-false}
//	  poll_interval: 20us
//	heap:
//	  chunk_size: 16
//	  block_chunks: 4096
//	  guard_bands: true
//	logging:
//	  level: debug
//
// Fields carry yaml, json and mapstructure tags so the same structure can be
// decoded by viper in the CLI.
package config
