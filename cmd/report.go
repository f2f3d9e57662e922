package cmd

import (
	"os"

	"finscan/internal/report"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [result.json]",
	Short: "Render a JSON result written by process --json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := report.Load(args[0])
		if err != nil {
			return err
		}
		report.Render(os.Stdout, res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
