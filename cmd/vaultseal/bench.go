package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Time key derivation and encryption for each profile",
	Long: `Bench runs one derive, seal and open cycle per profile so you can pick a
profile that fits your hardware. With --all unset only the configured cost
is measured.`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

var benchAll bool

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().BoolVar(&benchAll, "all", false, "Benchmark every built-in profile")
}

type benchRow struct {
	Name          string  `json:"name"`
	KDF           string  `json:"kdf"`
	KeyDerivation string  `json:"key_derivation"`
	Encryption    string  `json:"encryption"`
	Decryption    string  `json:"decryption"`
	EncryptMiBps  float64 `json:"encrypt_mib_s"`
	MeetsTarget   bool    `json:"meets_target"`
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	type target struct {
		name   string
		engine *crypto.CryptoEngine
	}

	var targets []target
	if benchAll {
		for _, p := range crypto.Profiles() {
			targets = append(targets, target{p.String(), crypto.NewEngine(p)})
		}
	} else {
		name := "custom"
		if p, custom := engine.Profile(); !custom {
			name = p.String()
		}
		targets = append(targets, target{name, engine})
	}

	var rows []benchRow
	for _, t := range targets {
		var res *crypto.BenchmarkResult
		err := withSpinner("Benchmarking "+t.name+"...", func() error {
			var err error
			res, err = t.engine.Benchmark(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("benchmark %s: %w", t.name, err)
		}

		logger.WithFields(map[string]interface{}{
			"profile": t.name,
			"derive":  res.KeyDerivation.String(),
		}).Debug("Benchmark complete")

		rows = append(rows, benchRow{
			Name:          t.name,
			KDF:           res.Cost.String(),
			KeyDerivation: res.KeyDerivation.Round(time.Millisecond).String(),
			Encryption:    res.Encryption.String(),
			Decryption:    res.Decryption.String(),
			EncryptMiBps:  res.EncryptionThroughput(),
			MeetsTarget:   res.MeetsTarget(),
		})
	}

	if jsonOutput {
		printJSON(rows)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, color.New(color.Bold).Sprint("PROFILE\tKDF\tDERIVE\tSEAL\tOPEN\tCIPHER <1ms"))
	for _, r := range rows {
		ok := color.GreenString("yes")
		if !r.MeetsTarget {
			ok = color.YellowString("no")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Name, r.KDF, r.KeyDerivation, r.Encryption, r.Decryption, ok)
	}
	return w.Flush()
}
