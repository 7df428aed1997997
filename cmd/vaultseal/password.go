package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
	"github.com/TheMichaelB/vaultseal/internal/validation"
)

// passwordSource names where a password comes from. Passwords are never
// accepted as plain flag values because those end up in shell history.
type passwordSource struct {
	env  string
	file string
}

func addPasswordFlags(cmd *cobra.Command, src *passwordSource, prefix, what string) {
	cmd.Flags().StringVar(&src.env, prefix+"password-env", "",
		"Read the "+what+" from this environment variable")
	cmd.Flags().StringVar(&src.file, prefix+"password-file", "",
		"Read the "+what+" from this file (first line)")
}

// read returns the password from env, file or an interactive prompt. With
// confirm set the prompt asks twice and shows policy feedback.
func (p passwordSource) read(prompt string, confirm bool) ([]byte, error) {
	switch {
	case p.env != "":
		v, ok := os.LookupEnv(p.env)
		if !ok {
			return nil, fmt.Errorf("environment variable %s is not set", p.env)
		}
		return []byte(v), nil

	case p.file != "":
		data, err := os.ReadFile(p.file)
		if err != nil {
			return nil, fmt.Errorf("read password file: %w", err)
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			crypto.Wipe(data[i:])
			data = data[:i]
		}
		return data, nil
	}

	pw, err := promptPassword(prompt)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if !confirm {
		return pw, nil
	}

	reportPolicy(validation.NewPolicy(cfg.Policy).Check(string(pw)))

	again, err := promptPassword("Confirm: ")
	if err != nil {
		crypto.Wipe(pw)
		return nil, fmt.Errorf("read password: %w", err)
	}
	defer crypto.Wipe(again)

	if !crypto.ConstantTimeCompare(pw, again) {
		crypto.Wipe(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func promptPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal; use --password-env or --password-file")
	}

	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, err
	}
	return password, nil
}

func reportPolicy(r *validation.Result) {
	if jsonOutput {
		return
	}
	for _, msg := range r.Messages() {
		printWarning("%s", msg)
	}
	if r.CrackTime != "" {
		printInfo("Estimated crack time: %s (score %d/4)", r.CrackTime, r.Score)
	}
}

// readInput returns the secret value from --value, --file or stdin.
func readInput(value, file string) ([]byte, error) {
	switch {
	case value != "" && file != "":
		return nil, errors.New("use either --value or --file, not both")
	case value != "":
		return []byte(value), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		return data, nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return promptPassword("Secret value: ")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}
