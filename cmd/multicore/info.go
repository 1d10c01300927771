package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/multicore/internal/affinity"
	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

type systemInfo struct {
	Version           string         `json:"version"`
	GoVersion         string         `json:"go_version"`
	LogicalProcessors int            `json:"logical_processors"`
	AffinitySupported bool           `json:"affinity_supported"`
	AllowedCPUs       []int          `json:"allowed_cpus,omitempty"`
	MainThreads       int            `json:"main_threads"`
	ServoThreads      int            `json:"servo_threads"`
	Config            *config.Config `json:"config"`
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show processor detection and effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(systemInfo{
				Version:           version,
				GoVersion:         runtime.Version(),
				LogicalProcessors: a.registry.Settings().LogicalProcessors(),
				AffinitySupported: affinity.Supported(),
				AllowedCPUs:       affinity.Allowed(),
				MainThreads:       a.registry.Pool(threadpool.MainOwner).NumThreads(),
				ServoThreads:      a.registry.Pool(threadpool.ServoOwner).NumThreads(),
				Config:            a.cfg,
			})
		},
	}
}
