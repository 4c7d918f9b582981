// Command memassist watches the memory pools of a Go process and creates heap
// dumps when they cross the configured thresholds.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"GoMemoryAssistant/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "memassist",
	Short: "Memory assistant: heap dumps on memory thresholds",
	Long: `memassist samples memory pool usage on a fixed interval and creates a heap
dump when a pool violates its threshold, at most as often as the configured
maximum frequency allows.

Thresholds:
  85%          usage above 85% of the pool maximum
  >=400MB      used bytes compared to an absolute size (B, KB, MB, GB)
  +5%/2m       usage grew by 5 percentage points or more within 2 minutes

Every property can be set in the YAML file given with --config or in the
environment, e.g. JMA_CHECK_INTERVAL=5s or JMA_THRESHOLDS_HEAP=85%.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
}

// loadConfig reads the configuration file given with --config and the
// environment.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath, os.Environ())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}
