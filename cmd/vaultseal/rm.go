package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:     "rm <name>...",
	Aliases: []string{"delete"},
	Short:   "Delete stored secrets",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, closeStore, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var failed int
	for _, name := range args {
		if err := svc.Delete(ctx, name); err != nil {
			failed++
			if !jsonOutput {
				printError("%v", err)
			}
			continue
		}
		if !jsonOutput {
			printSuccess("Deleted %s", name)
		}
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": failed == 0, "deleted": len(args) - failed, "failed": failed})
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(args))
	}
	return nil
}
