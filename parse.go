package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"GoMemoryAssistant/pkg/threshold"
)

var parseCmd = &cobra.Command{
	Use:   "parse <expression>...",
	Short: "Parse threshold, frequency or interval expressions",
	Long: `Parse expressions with the configuration grammar and print how they are
understood.

Examples:
  memassist parse 85% '>=400MB' '+5%/2m'
  memassist parse --frequency 1/10m 3/h
  memassist parse --interval 5s 500ms`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frequency, _ := cmd.Flags().GetBool("frequency")
		interval, _ := cmd.Flags().GetBool("interval")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		failed := 0
		for _, arg := range args {
			var desc string
			var err error
			switch {
			case frequency:
				var f threshold.Frequency
				if f, err = threshold.ParseFrequency(arg); err == nil {
					desc = fmt.Sprintf("at most %d heap dumps per %s", f.MaxCount, f.Window)
				}
			case interval:
				var d time.Duration
				if d, err = threshold.ParseInterval(arg); err == nil {
					desc = "check every " + d.String()
				}
			default:
				desc, err = describe(arg)
			}

			if err != nil {
				failed++
				fmt.Printf("%s %s %s\n", red("✗"), arg, red(err))
				continue
			}
			fmt.Printf("%s %s %s\n", green("✓"), arg, gray(desc))
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d expressions are invalid", failed, len(args))
		}
		return nil
	},
}

func describe(raw string) (string, error) {
	spec, err := threshold.Parse(raw)
	if err != nil {
		return "", err
	}
	switch s := spec.(type) {
	case threshold.Absolute:
		return fmt.Sprintf("absolute: used %s %s%s (%s bytes)", s.Comparison.Human(),
			threshold.FormatDecimal(s.Unit.FromBytes(s.TargetBytes)), s.Unit,
			threshold.FormatDecimal(s.TargetBytes)), nil
	case threshold.Percentage:
		return fmt.Sprintf("percentage: usage above %s%%", threshold.FormatDecimal(s.Percent)), nil
	case threshold.IncreaseOverTimeframe:
		return fmt.Sprintf("increase-over-timeframe: +%s%% within %s", threshold.FormatDecimal(s.DeltaPercent),
			s.TimeframeDuration()), nil
	case threshold.Disabled:
		return "", errors.New("empty expression")
	}
	return spec.String(), nil
}

func init() {
	parseCmd.Flags().Bool("frequency", false, "Parse maximum frequencies like 1/10m")
	parseCmd.Flags().Bool("interval", false, "Parse check intervals like 5s")
	parseCmd.MarkFlagsMutuallyExclusive("frequency", "interval")
	rootCmd.AddCommand(parseCmd)
}
