package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/darshan-rambhia/fleetmon/internal/config"
	"github.com/spf13/cobra"
)

// @title fleetmon API
// @version 1.0
// @description Server fleet health metrics, alerts and reports.
// @BasePath /

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// buildInfo returns version, commit, build time, and VCS details from the
// embedded Go build info. ldflags-injected values take priority; VCS info
// from debug.ReadBuildInfo fills in anything left as default.
func buildInfo() (ver, sha, built, dirty string) {
	ver = version
	sha = commit
	built = buildTime
	dirty = "clean"

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if sha == "none" {
				sha = s.Value
			}
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "dirty"
			}
		}
	}

	return
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "fleetmon",
		Short:         "Server fleet health monitoring",
		Long:          `fleetmon samples server health on a schedule, raises threshold alerts, streams both over websockets and produces daily performance reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to fleetmon.yml config file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if errors.Is(err, config.ErrConfigFileNotFound) {
			return nil, fmt.Errorf("%w (run without --config to use defaults and FLEETMON_* environment variables)", err)
		}
		if err != nil {
			return nil, fmt.Errorf("loading config (%s): %w", configPath, err)
		}
		setupLogging(cfg)
		return cfg, nil
	}

	root.AddCommand(
		serveCmd(load),
		collectCmd(load),
		scheduleReportsCmd(load),
		generateReportCmd(load),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build details",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ver, sha, built, dirty := buildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "fleetmon %s\n  commit:    %s (%s)\n  built:     %s\n  go:        %s\n  platform:  %s/%s\n",
				ver, sha, dirty, built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
