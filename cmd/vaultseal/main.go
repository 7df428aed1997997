package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/vaultseal/internal/config"
	"github.com/TheMichaelB/vaultseal/internal/crypto"
	"github.com/TheMichaelB/vaultseal/internal/events"
	"github.com/TheMichaelB/vaultseal/internal/services/secrets"
	"github.com/TheMichaelB/vaultseal/internal/store"
	"github.com/TheMichaelB/vaultseal/internal/validation"
)

var (
	cfg        *config.Config
	logger     *events.Logger
	engine     *crypto.CryptoEngine
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "vaultseal",
	Short: "Password-based encryption for repository secrets",
	Long: `vaultseal seals secrets (API keys, credentials, configuration values)
under keys derived from a password with Argon2id, and stores the
ChaCha20-Poly1305 envelopes in a local directory, SQLite or S3.

Environment variables override configuration using the VAULTSEAL_ prefix,
for example VAULTSEAL_CRYPTO_PROFILE=secure.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (default: search vaultseal.yaml, ~/.config/vaultseal)")
	flags.BoolVar(&jsonOutput, "json", false, "Output JSON")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("profile", "", "Key derivation profile (fast, balanced, secure, paranoid)")
	flags.String("backend", "", "Store backend (memory, file, sqlite, s3)")
}

func setup(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(configPath)

	v := loader.Viper()
	bindings := map[string]string{
		"log.level":      "log-level",
		"crypto.profile": "profile",
		"store.backend":  "backend",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	if f := loader.ConfigFile(); f != "" {
		logger.WithField("path", f).Debug("Loaded config file")
	}

	engine, err = cfg.Crypto.NewEngine()
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	return nil
}

// openService builds the secrets service over the configured store. The
// returned func closes the store.
func openService(ctx context.Context) (*secrets.Service, func(), error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, err
	}

	st, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	svc := secrets.NewService(engine, st, validation.NewPolicy(cfg.Policy), logger)
	svc.SetVerifyMinDuration(cfg.Crypto.VerifyMinDuration)

	closeFn := func() {
		for op, stats := range svc.Metrics().Snapshot() {
			logger.WithFields(map[string]interface{}{
				"op":            op,
				"count":         stats.Count,
				"failures":      stats.Failures,
				"auth_failures": stats.AuthFailures,
				"mean_ms":       stats.Mean().Milliseconds(),
			}).Debug("Operation stats")
		}
		_ = st.Close()
	}
	return svc, closeFn, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// withSpinner runs fn behind a spinner on interactive terminals.
func withSpinner(msg string, fn func() error) error {
	if jsonOutput || !isTerminal(os.Stderr) {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + msg
	s.Start()
	defer s.Stop()

	return fn()
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printSuccess(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, color.GreenString("✓")+" "+fmt.Sprintf(format, args...))
}

func printError(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, color.YellowString("!")+" "+fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, color.CyanString("→")+" "+fmt.Sprintf(format, args...))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{"success": false, "error": err.Error()})
		} else {
			printError("%v", err)
		}
		stop()
		os.Exit(1)
	}
}
