package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/mathprepa/internal/config"
	"github.com/seantiz/mathprepa/internal/seed"
	"github.com/seantiz/mathprepa/internal/store"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <catalog.yaml>",
		Short: "Import topics and exercises from a YAML catalog",
		Long: `Import topics and exercises from a YAML catalog file.

Records are keyed by id: importing the same file twice creates nothing the
second time. Exercises that reference an unknown topic are imported with a
warning.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if rootOpts.DatabaseURL != "" {
				cfg.DatabaseURL = rootOpts.DatabaseURL
			}

			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			logger := config.NewLogger(os.Stderr, cfg.LogLevel)
			res, err := seed.NewImporter(db, logger).ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printImportResult(cmd.OutOrStdout(), rootOpts.Format, res)
		},
	}
	return cmd
}

func printImportResult(w io.Writer, format string, res *seed.Result) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "topics:    %d created, %d skipped\n", res.TopicsCreated, res.TopicsSkipped)
	fmt.Fprintf(w, "exercises: %d created, %d skipped\n", res.ExercisesCreated, res.ExercisesSkipped)
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}
