package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
	"github.com/TheMichaelB/vaultseal/internal/models"
)

var openCmd = &cobra.Command{
	Use:   "open <name>",
	Short: "Decrypt a stored secret",
	Long: `Open decrypts a stored secret and writes the value to stdout, or to a
file with --out. Binary values are refused on a terminal unless --out is set.`,
	Example: `  vaultseal open stripe/live
  vaultseal open deploy-key --out ~/.ssh/id_ed25519 --password-file ~/.pw`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

var (
	openOut      string
	openPassword passwordSource
)

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().StringVarP(&openOut, "out", "o", "", "Write the value to this file (mode 0600)")
	addPasswordFlags(openCmd, &openPassword, "", "password")
}

func runOpen(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	password, err := openPassword.read(fmt.Sprintf("Password for %s: ", name), false)
	if err != nil {
		return err
	}
	defer crypto.Wipe(password)

	svc, closeStore, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var pt *models.PlaintextSecret
	err = withSpinner("Deriving key...", func() error {
		var err error
		pt, err = svc.Open(ctx, name, password)
		return err
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer pt.Wipe()

	if openOut != "" {
		if err := os.WriteFile(openOut, pt.Bytes(), 0600); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if !jsonOutput {
			printSuccess("Wrote %s to %s (%d bytes)", name, openOut, pt.Len())
		}
		return nil
	}

	if jsonOutput {
		text, err := pt.Text()
		if err != nil {
			return fmt.Errorf("%s holds binary data; use --out", name)
		}
		printJSON(map[string]interface{}{"success": true, "name": name, "value": text})
		return nil
	}

	if pt.IsBinary() && isTerminal(os.Stdout) {
		return fmt.Errorf("%s holds binary data; use --out or redirect stdout", name)
	}

	_, err = os.Stdout.Write(pt.Bytes())
	return err
}
