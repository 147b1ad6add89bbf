package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "questad",
		Short: "HDL verification job server",
		Long: `questad runs simulation and formal verification jobs against a Questa
toolchain. Jobs queue behind a single license-gated run slot; progress,
logs and parsed reports are served over a REST and WebSocket API.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
