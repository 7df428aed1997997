package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
)

var errPasswordMismatch = errors.New("password does not match")

var verifyCmd = &cobra.Command{
	Use:   "verify <name>",
	Short: "Check a password against a stored secret without decrypting it",
	Long: `Verify recomputes the envelope's authentication tag with a key derived
from the given password. The value is never decrypted. Exits non-zero when
the password does not match.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var verifyPassword passwordSource

func init() {
	rootCmd.AddCommand(verifyCmd)
	addPasswordFlags(verifyCmd, &verifyPassword, "", "password")
}

func runVerify(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	password, err := verifyPassword.read(fmt.Sprintf("Password for %s: ", name), false)
	if err != nil {
		return err
	}
	defer crypto.Wipe(password)

	svc, closeStore, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var ok bool
	err = withSpinner("Verifying...", func() error {
		var err error
		ok, err = svc.Verify(ctx, name, password)
		return err
	})
	if err != nil {
		return fmt.Errorf("verify %s: %w", name, err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "name": name, "match": ok})
	} else if ok {
		printSuccess("Password matches %s", name)
	}

	if !ok {
		return errPasswordMismatch
	}
	return nil
}
