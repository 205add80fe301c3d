package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Dropicx/docworker/internal/domain"
)

var stepsDocType string

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List the configured pipeline steps",
	RunE:  runSteps,
}

func init() {
	stepsCmd.Flags().StringVarP(&stepsDocType, "document-type", "t", "", "scope to list (empty = universal)")
	rootCmd.AddCommand(stepsCmd)
}

func runSteps(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	docType := domain.DocumentType(stepsDocType)
	if docType != "" && !docType.Valid() {
		return fmt.Errorf("unknown document type %q", stepsDocType)
	}

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	configs, err := a.repos.StepConfigs.ListByScope(ctx, docType)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, c := range configs {
		state := color.GreenString("enabled")
		if !c.Enabled {
			state = color.YellowString("disabled")
		}
		rows = append(rows, []string{
			strconv.Itoa(c.ExecOrder),
			string(c.Name),
			c.DisplayName,
			state,
		})
	}
	printTable([]string{"ORDER", "STEP", "DISPLAY NAME", "STATE"}, rows)
	return nil
}
