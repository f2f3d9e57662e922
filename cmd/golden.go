package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"finscan/internal/logger"
	"finscan/internal/report"
	"finscan/internal/snapshot"

	"github.com/spf13/cobra"
)

var goldenCmd = &cobra.Command{
	Use:   "golden",
	Short: "Manage golden snapshots used by the regression diff",
	Long: `Golden snapshots are stored documents that later runs are diffed against.
They live in the SQLite database at FINSCAN_SNAPSHOT_DB.`,
}

var goldenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored golden snapshots",
	Args:  cobra.NoArgs,
	RunE:  runGoldenList,
}

var goldenShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a golden document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoldenShow,
}

var goldenSaveCmd = &cobra.Command{
	Use:   "save [name] [result.json]",
	Short: "Store the document of a JSON result as a golden snapshot",
	Example: `  finscan process budget.pdf --json -o budget.json
  finscan golden save budget budget.json`,
	Args: cobra.ExactArgs(2),
	RunE: runGoldenSave,
}

var goldenDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a golden snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoldenDelete,
}

func init() {
	rootCmd.AddCommand(goldenCmd)
	goldenCmd.AddCommand(goldenListCmd, goldenShowCmd, goldenSaveCmd, goldenDeleteCmd)
}

func withStore(fn func(*snapshot.Store) error) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runGoldenList(cmd *cobra.Command, args []string) error {
	return withStore(func(store *snapshot.Store) error {
		list, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No golden snapshots stored.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSOURCE\tPAGES\tSAVED")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Name, s.Source, s.Pages, s.SavedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	})
}

func runGoldenShow(cmd *cobra.Command, args []string) error {
	return withStore(func(store *snapshot.Store) error {
		doc, err := store.Load(cmd.Context(), args[0])
		if errors.Is(err, snapshot.ErrNotFound) {
			return fmt.Errorf("no golden snapshot named %q", args[0])
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	})
}

func runGoldenSave(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("golden")

	res, err := report.Load(args[1])
	if err != nil {
		return err
	}
	return withStore(func(store *snapshot.Store) error {
		if err := store.Save(cmd.Context(), args[0], res.Document); err != nil {
			return err
		}
		log.Info().Str("name", args[0]).Str("from", args[1]).Msg("Golden snapshot saved")
		fmt.Printf("Saved golden snapshot %q (%d pages)\n", args[0], len(res.Document.Pages))
		return nil
	})
}

func runGoldenDelete(cmd *cobra.Command, args []string) error {
	return withStore(func(store *snapshot.Store) error {
		err := store.Delete(cmd.Context(), args[0])
		if errors.Is(err, snapshot.ErrNotFound) {
			return fmt.Errorf("no golden snapshot named %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("Deleted golden snapshot %q\n", args[0])
		return nil
	})
}
