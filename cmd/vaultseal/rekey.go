package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
	"github.com/TheMichaelB/vaultseal/internal/models"
)

var rekeyCmd = &cobra.Command{
	Use:   "rekey <name>",
	Short: "Re-encrypt a secret under a new password",
	Long: `Rekey opens a secret with its current password and seals it again under
a new password with a fresh salt and nonce at the configured profile.
Metadata is kept. The stored envelope is replaced only on success.`,
	Args: cobra.ExactArgs(1),
	RunE: runRekey,
}

var (
	rekeyOld passwordSource
	rekeyNew passwordSource
)

func init() {
	rootCmd.AddCommand(rekeyCmd)
	addPasswordFlags(rekeyCmd, &rekeyOld, "old-", "current password")
	addPasswordFlags(rekeyCmd, &rekeyNew, "new-", "new password")
}

func runRekey(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	oldPw, err := rekeyOld.read("Current password: ", false)
	if err != nil {
		return err
	}
	defer crypto.Wipe(oldPw)

	newPw, err := rekeyNew.read("New password: ", true)
	if err != nil {
		return err
	}
	defer crypto.Wipe(newPw)

	svc, closeStore, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var rekeyed *models.EncryptedSecret
	err = withSpinner("Re-encrypting...", func() error {
		var err error
		rekeyed, err = svc.Rekey(ctx, name, oldPw, newPw)
		return err
	})
	if err != nil {
		return fmt.Errorf("rekey %s: %w", name, err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "name": name, "kdf": rekeyed.KDF()})
		return nil
	}

	printSuccess("Rekeyed %s (%s)", name, rekeyed.KDF())
	return nil
}
