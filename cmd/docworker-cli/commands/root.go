// Package commands implements the docworker CLI commands.
package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "docworker",
	Short: "Process scanned medical documents into patient-readable text",
	Long: `docworker runs scanned medical documents through a configurable AI
pipeline: image quality gating, text extraction, classification,
plain-language translation, fact checking, and formatting. Every model
interaction is recorded in an audit trail.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
