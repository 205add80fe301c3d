package commands

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List the active prompt template per step and scope",
	RunE:  runPrompts,
}

func init() {
	rootCmd.AddCommand(promptsCmd)
}

func runPrompts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	templates, err := a.repos.Prompts.List(ctx)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, tpl := range templates {
		scope := string(tpl.DocumentType)
		if scope == "" {
			scope = "universal"
		}
		rows = append(rows, []string{
			string(tpl.Step),
			scope,
			strconv.Itoa(tpl.Version),
			tpl.UpdatedBy,
		})
	}
	printTable([]string{"STEP", "SCOPE", "VERSION", "UPDATED BY"}, rows)
	return nil
}
