package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"GoMemoryAssistant/pkg/agent"
	"GoMemoryAssistant/pkg/config"
	"GoMemoryAssistant/pkg/health"
	"GoMemoryAssistant/pkg/threshold"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and show what would be monitored",
	Long: `Validate the configuration file and environment, then print the properties
that were set, the warnings and the memory conditions.

Examples:
  memassist check --config memassist.yaml

  # Also read every pool once from the configured source
  memassist check --config memassist.yaml --sample`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sample, _ := cmd.Flags().GetBool("sample")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Memory Assistant Configuration ==="))

		state := gray("disabled")
		if cfg.Enabled {
			state = green("enabled")
		}
		fmt.Printf("Agent: %s\n", state)
		fmt.Printf("Source: %s\n", cfg.Source)
		fmt.Printf("Trigger history: %s\n", cfg.History.Backend)
		fmt.Printf("Heap dumps: %s (%s) in %s\n", cfg.HeapDumpName, cfg.HeapDumpFormat, cfg.HeapDumpFolder)
		if cfg.CheckInterval > 0 {
			fmt.Printf("Check interval: %s\n", cfg.CheckInterval)
		} else {
			fmt.Printf("Check interval: %s\n", gray("not set"))
		}
		if cfg.MaxFrequency != nil {
			fmt.Printf("Max frequency: %s\n", cfg.MaxFrequency)
		} else {
			fmt.Printf("Max frequency: %s\n", gray("unlimited"))
		}

		fmt.Printf("\n%s\n", yellow("Conditions:"))
		if len(cfg.Thresholds) == 0 {
			fmt.Printf("  %s\n", gray("No memory conditions"))
		}
		for _, t := range cfg.Thresholds {
			fmt.Printf("  %-9s %-24s %s\n", t.Pool, t.Spec, gray(t.Spec.Kind()))
		}

		if len(cfg.Overrides) > 0 {
			fmt.Printf("\n%s\n", yellow("Properties set:"))
			for _, o := range cfg.Overrides {
				fmt.Printf("  %s\n", o)
			}
		}

		if len(cfg.Warnings) > 0 {
			fmt.Printf("\n%s\n", yellow("Warnings:"))
			for _, w := range cfg.Warnings {
				fmt.Printf("  %s %s\n", yellow("!"), w)
			}
		}

		if sample {
			if err := printSamples(cmd.Context(), cfg); err != nil {
				return err
			}
		}

		fmt.Printf("\n%s Configuration is valid\n", green("✓"))
		return nil
	},
}

func printSamples(ctx context.Context, cfg *config.Config) error {
	a, err := agent.New(ctx, cfg, agent.Options{})
	if err != nil {
		return err
	}
	defer a.Stop(context.Background())

	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n", yellow("Samples:"))
	for _, pool := range health.Pools {
		u, err := a.Source().Sample(ctx, pool)
		if err != nil {
			fmt.Printf("  %-9s %s\n", pool, red(err))
			continue
		}
		if u.Max <= 0 {
			fmt.Printf("  %-9s %sB used, %s\n", pool, threshold.FormatDecimal(float64(u.Used)), gray("no maximum"))
			continue
		}
		fmt.Printf("  %-9s %sB used of %sB (%s%%)\n", pool,
			threshold.FormatDecimal(float64(u.Used)), threshold.FormatDecimal(float64(u.Max)),
			threshold.FormatDecimal(u.Ratio()))
	}
	return nil
}

func init() {
	checkCmd.Flags().Bool("sample", false, "Read every pool once from the configured source")
	rootCmd.AddCommand(checkCmd)
}
