package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// Envelope formats for export and import.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var exportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Write a sealed envelope as JSON or YAML",
	Long: `Export writes the stored envelope without decrypting it. The output can
be committed or sent elsewhere and brought back with import.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <name> [file]",
	Short: "Store a sealed envelope read from a file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runImport,
}

var (
	exportOut       string
	exportFormat    string
	importFormat    string
	importOverwrite bool
)

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "json or yaml (default from --out extension, else json)")
	importCmd.Flags().StringVar(&importFormat, "format", "", "json or yaml (default from file extension, else json)")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Replace an existing secret")
}

// envelopeFormat picks a format from an explicit flag or a file extension.
func envelopeFormat(flag, path string) (string, error) {
	if flag != "" {
		switch f := strings.ToLower(flag); f {
		case formatJSON, formatYAML:
			return f, nil
		case "yml":
			return formatYAML, nil
		}
		return "", fmt.Errorf("unknown format %q", flag)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return formatJSON, nil
}

func encodeEnvelope(secret *models.EncryptedSecret, format string) ([]byte, error) {
	if format == formatYAML {
		return yaml.Marshal(secret)
	}
	data, err := json.MarshalIndent(secret, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decodeEnvelope(data []byte, format string) (*models.EncryptedSecret, error) {
	if format == formatYAML {
		return models.ParseYAML(data)
	}
	return models.ParseJSON(data)
}

func runExport(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	format, err := envelopeFormat(exportFormat, exportOut)
	if err != nil {
		return err
	}

	svc, closeStore, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	secret, err := svc.Get(ctx, name)
	if err != nil {
		return err
	}

	data, err := encodeEnvelope(secret, format)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	if exportOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(exportOut, data, 0600); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !jsonOutput {
		printSuccess("Exported %s to %s", name, exportOut)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	path := ""
	if len(args) == 2 {
		path = args[1]
	}
	format, err := envelopeFormat(importFormat, path)
	if err != nil {
		return err
	}

	var data []byte
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read envelope: %w", err)
	}

	secret, err := decodeEnvelope(data, format)
	if err != nil {
		return err
	}

	svc, closeStore, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := svc.Import(ctx, name, secret, importOverwrite); err != nil {
		return fmt.Errorf("import %s: %w", name, err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "name": name, "kdf": secret.KDF()})
		return nil
	}
	printSuccess("Imported %s (%s)", name, secret.KDF())
	return nil
}
