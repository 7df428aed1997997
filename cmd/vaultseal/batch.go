package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultseal/internal/config"
	"github.com/TheMichaelB/vaultseal/internal/crypto"
	"github.com/TheMichaelB/vaultseal/internal/models"
	"github.com/TheMichaelB/vaultseal/internal/services/secrets"
)

var batchCmd = &cobra.Command{
	Use:   "batch <pattern>...",
	Short: "Seal many files under one password",
	Long: `Batch expands glob patterns (** is supported), derives one key from the
password, and seals every matched file with its own nonce. Each secret is
named --prefix plus the file's path relative to --root, with forward slashes.
One failing file never stops the others.`,
	Example: `  vaultseal batch 'config/**/*.env' --prefix prod/
  vaultseal batch 'certs/*.pem' --binary --type private_key`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var (
	batchRoot        string
	batchPrefix      string
	batchBinary      bool
	batchOverwrite   bool
	batchDescription string
	batchType        string
	batchTags        []string
	batchPassword    passwordSource
)

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchRoot, "root", ".", "Directory patterns and names are relative to")
	batchCmd.Flags().StringVar(&batchPrefix, "prefix", "", "Prefix added to every secret name")
	batchCmd.Flags().BoolVar(&batchBinary, "binary", false, "Include files with binary content")
	batchCmd.Flags().BoolVar(&batchOverwrite, "overwrite", false, "Replace existing secrets")
	batchCmd.Flags().StringVarP(&batchDescription, "description", "d", "", "Description stored with every secret")
	batchCmd.Flags().StringVarP(&batchType, "type", "t", "", "Secret type for every secret")
	batchCmd.Flags().StringSliceVar(&batchTags, "tags", nil, "Comma-separated tags")
	addPasswordFlags(batchCmd, &batchPassword, "", "password")
}

type batchFile struct {
	Path  string
	Label string
}

// collectFiles expands patterns under root and returns the regular files
// they match, deduplicated and labelled by their slash-separated path
// relative to root. Files under skipDir are ignored.
func collectFiles(root string, patterns []string, prefix, skipDir string) ([]batchFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if skipDir != "" {
		if skipDir, err = filepath.Abs(skipDir); err != nil {
			return nil, fmt.Errorf("resolve store dir: %w", err)
		}
	}

	seen := make(map[string]bool)
	var files []batchFile

	for _, pattern := range patterns {
		absPattern := pattern
		if !filepath.IsAbs(pattern) {
			absPattern = filepath.Join(absRoot, pattern)
		}

		matches, err := doublestar.FilepathGlob(absPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}

		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if skipDir != "" && (m == skipDir || strings.HasPrefix(m, skipDir+string(filepath.Separator))) {
				continue
			}
			if seen[m] {
				continue
			}
			seen[m] = true

			rel, err := filepath.Rel(absRoot, m)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return nil, fmt.Errorf("%s is outside %s", m, root)
			}
			files = append(files, batchFile{Path: m, Label: prefix + filepath.ToSlash(rel)})
		}
	}

	return files, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts, err := encryptionOptions(batchDescription, batchType, batchTags)
	if err != nil {
		return err
	}

	skip := ""
	if cfg.Store.Backend == config.BackendFile {
		skip = cfg.Store.Dir
	}
	files, err := collectFiles(batchRoot, args, batchPrefix, skip)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files match %s", strings.Join(args, " "))
	}

	var items []crypto.BatchItem
	defer func() {
		for _, it := range items {
			crypto.Wipe(it.Plaintext)
		}
	}()

	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Path, err)
		}
		if !batchBinary && models.IsBinaryContent(data) {
			crypto.Wipe(data)
			if !jsonOutput {
				printWarning("Skipping binary file %s (use --binary)", f.Path)
			}
			continue
		}
		items = append(items, crypto.BatchItem{Label: f.Label, Plaintext: data})
	}
	if len(items) == 0 {
		return errors.New("every matched file is binary; use --binary")
	}

	password, err := batchPassword.read("Password: ", true)
	if err != nil {
		return err
	}
	defer crypto.Wipe(password)

	svc, closeStore, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var result *crypto.BatchResult
	err = withSpinner(fmt.Sprintf("Sealing %d files...", len(items)), func() error {
		var err error
		result, err = svc.SealBatch(ctx, items, password, &secrets.SealOptions{
			Encryption: opts,
			Overwrite:  batchOverwrite,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	if jsonOutput {
		type entry struct {
			Name  string `json:"name"`
			Error string `json:"error,omitempty"`
		}
		out := make([]entry, 0, len(result.Items))
		for _, it := range result.Items {
			e := entry{Name: it.Label}
			if it.Err != nil {
				e.Error = it.Err.Error()
			}
			out = append(out, e)
		}
		printJSON(map[string]interface{}{"success": result.Err() == nil, "items": out})
	} else {
		for _, it := range result.Items {
			if it.Err != nil {
				printError("%s: %v", it.Label, it.Err)
			} else {
				printSuccess("Sealed %s", it.Label)
			}
		}
		printInfo("%d sealed, %d failed", len(result.Successes()), len(result.Failures()))
	}

	return result.Err()
}
