package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
	"github.com/TheMichaelB/vaultseal/internal/models"
	"github.com/TheMichaelB/vaultseal/internal/services/secrets"
)

var sealCmd = &cobra.Command{
	Use:   "seal <name>",
	Short: "Encrypt a secret and store it under a name",
	Long: `Seal reads a secret value, encrypts it under a key derived from your
password, and stores the envelope. The value comes from --value, --file,
or stdin (prompted without echo on a terminal).`,
	Example: `  vaultseal seal stripe/live --type api_key --description "Stripe live key"
  cat id_ed25519 | vaultseal seal deploy-key --password-env DEPLOY_PW
  vaultseal seal db-url --file .db-url --profile secure --tags prod,db`,
	Args: cobra.ExactArgs(1),
	RunE: runSeal,
}

var (
	sealValue       string
	sealFile        string
	sealDescription string
	sealType        string
	sealTags        []string
	sealOverwrite   bool
	sealPassword    passwordSource
)

func init() {
	rootCmd.AddCommand(sealCmd)

	sealCmd.Flags().StringVar(&sealValue, "value", "", "Secret value (prefer --file or stdin)")
	sealCmd.Flags().StringVarP(&sealFile, "file", "f", "", "Read the secret value from a file")
	sealCmd.Flags().StringVarP(&sealDescription, "description", "d", "", "Description stored alongside the envelope")
	sealCmd.Flags().StringVarP(&sealType, "type", "t", "", "Secret type (generic, api_key, password, private_key, database_url, config, custom:<name>)")
	sealCmd.Flags().StringSliceVar(&sealTags, "tags", nil, "Comma-separated tags")
	sealCmd.Flags().BoolVar(&sealOverwrite, "overwrite", false, "Replace an existing secret")
	addPasswordFlags(sealCmd, &sealPassword, "", "password")
}

// encryptionOptions builds engine options from the shared seal flags.
func encryptionOptions(description, secretType string, tags []string) (*crypto.EncryptionOptions, error) {
	opts := crypto.NewEncryptionOptions().
		WithDescription(description).
		WithTags(tags...).
		WithMaxPlaintextSize(cfg.Crypto.MaxPlaintextSize)

	if secretType != "" {
		t, err := models.ParseSecretType(secretType)
		if err != nil {
			return nil, err
		}
		opts.WithType(t)
	}

	return opts, nil
}

func runSeal(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	opts, err := encryptionOptions(sealDescription, sealType, sealTags)
	if err != nil {
		return err
	}

	value, err := readInput(sealValue, sealFile)
	if err != nil {
		return err
	}
	defer crypto.Wipe(value)

	password, err := sealPassword.read("Password: ", true)
	if err != nil {
		return err
	}
	defer crypto.Wipe(password)

	svc, closeStore, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var secret *models.EncryptedSecret
	start := time.Now()
	err = withSpinner("Deriving key and sealing...", func() error {
		var err error
		secret, err = svc.Seal(ctx, name, value, password, &secrets.SealOptions{
			Encryption: opts,
			Overwrite:  sealOverwrite,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("seal %s: %w", name, err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"name":    name,
			"kdf":     secret.KDF(),
			"size":    len(value),
		})
		return nil
	}

	printSuccess("Sealed %s (%d bytes, %s, %s)", name, len(value), secret.KDF(), time.Since(start).Round(time.Millisecond))
	return nil
}
