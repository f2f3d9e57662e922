package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"finscan/internal/logger"
	"finscan/internal/pipeline"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Classify every page as native, scan or mixed without extracting",
	Long: `Print the page manifest: per page the native character count, image
coverage, vector line density, the resulting mode and the DPI recommended
for OCR. Nothing is recognised, so no engine or credentials are needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("json", false, "Output the manifest as JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("inspect")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	if _, err := validateInputFile(args[0], log); err != nil {
		return err
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	pcfg := cfg.Pipeline()
	in, err := pipeline.OpenInput(args[0], pcfg.ImageDPI)
	if err != nil {
		return handleRunError(err, log)
	}
	manifest, err := pipeline.Inspect(ctx, in, pcfg.PageMode)
	if err != nil {
		return handleRunError(err, log)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tMODE\tCHARS\tIMAGE\tLINES\tSIZE\tDPI\tGEOMETRY")
	for _, m := range manifest {
		geometry := "ok"
		if !m.GeometryReadable {
			geometry = "unreadable"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f\t%.4f\t%.0fx%.0f\t%d\t%s\n",
			m.PageIndex, m.Mode, m.NativeCharCount, m.ImageCoverageRatio, m.VectorLineDensity,
			m.Width, m.Height, m.RecommendedDPI, geometry)
	}
	return tw.Flush()
}
