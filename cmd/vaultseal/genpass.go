package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultseal/internal/validation"
)

var genpassCmd = &cobra.Command{
	Use:   "genpass",
	Short: "Generate a random password",
	Args:  cobra.NoArgs,
	RunE:  runGenpass,
}

var genpassLength int

func init() {
	rootCmd.AddCommand(genpassCmd)
	genpassCmd.Flags().IntVarP(&genpassLength, "length", "n", 32, "Password length")
}

func runGenpass(cmd *cobra.Command, args []string) error {
	pw, err := engine.GeneratePassword(genpassLength)
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}

	r := validation.NewPolicy(cfg.Policy).Check(pw)

	if jsonOutput {
		printJSON(map[string]interface{}{
			"password":   pw,
			"score":      r.Score,
			"crack_time": r.CrackTime,
		})
		return nil
	}

	fmt.Println(pw)
	reportPolicy(r)
	return nil
}
