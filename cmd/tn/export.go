package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tasknest/tasknest/internal/migrate"
	"github.com/tasknest/tasknest/internal/ui"
)

var exportDeleted bool

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "sync",
	Short:   "Export tasks to a JSONL or YAML archive",
	Long: `Write the signed-in user's tasks and groups to an archive.

The format follows the file extension: .jsonl/.ndjson or .yaml/.yml.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		id, err := e.identity(ctx)
		if err != nil {
			fail(err)
		}

		res, err := migrate.Export(ctx, e.store, id.ID, args[0], migrate.Options{IncludeDeleted: exportDeleted})
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Exported %d tasks, %d groups to %s\n",
			ui.RenderPass("✓"), res.Tasks, res.Groups, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "sync",
	Short:   "Import tasks from a JSONL or YAML archive",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		id, err := e.identity(ctx)
		if err != nil {
			fail(err)
		}

		res, err := migrate.Import(ctx, e.store, id.ID, args[0])
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Imported %d tasks, %d groups\n", ui.RenderPass("✓"), res.Tasks, res.Groups)
		if res.Skipped > 0 {
			fmt.Printf("%s Skipped %d invalid records\n", ui.RenderWarn("⚠"), res.Skipped)
			for _, msg := range res.Errors {
				fmt.Printf("   %s\n", ui.RenderDim(msg))
			}
		}
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportDeleted, "deleted", false, "include tombstoned records")
}
