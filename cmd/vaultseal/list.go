package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored secrets with their metadata",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

type listEntry struct {
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   int64    `json:"created_at,omitempty"`
	KDF         string   `json:"kdf"`
	Size        int      `json:"ciphertext_size"`
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, closeStore, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	names, err := svc.List(ctx)
	if err != nil {
		return err
	}

	entries := make([]listEntry, 0, len(names))
	for _, name := range names {
		secret, err := svc.Get(ctx, name)
		if err != nil {
			logger.WithError(err).WithField("secret", name).Warn("Skipping unreadable secret")
			continue
		}

		e := listEntry{Name: name, KDF: secret.KDF().String(), Size: secret.CiphertextLen()}
		if meta := secret.Metadata(); meta != nil {
			e.Type = string(meta.SecretType)
			e.Description = meta.Description
			e.Tags = meta.Tags
			e.CreatedAt = meta.CreatedAt
		}
		entries = append(entries, e)
	}

	if jsonOutput {
		printJSON(entries)
		return nil
	}

	if len(entries) == 0 {
		printInfo("No secrets stored in %s backend", cfg.Store.Backend)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, color.New(color.Bold).Sprint("NAME\tTYPE\tCREATED\tTAGS\tDESCRIPTION"))
	for _, e := range entries {
		created := "-"
		if e.CreatedAt > 0 {
			created = time.Unix(e.CreatedAt, 0).Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Name, orDash(e.Type), created, orDash(strings.Join(e.Tags, ",")), orDash(e.Description))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
