package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Strob0t/conductor/internal/middleware"
)

func newHashKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key",
		Short: "Hash an API key for auth.api_key_hash",
		Long: `Reads an API key without echoing it and prints the bcrypt hash to put
in auth.api_key_hash (or CONDUCTOR_API_KEY_HASH).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := promptSecret("API key: ")
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			confirm, err := promptSecret("Confirm API key: ")
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			if key != confirm {
				return errors.New("keys do not match")
			}
			if len(key) < 16 {
				return errors.New("api key must be at least 16 characters")
			}
			hash, err := middleware.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// promptSecret reads a line from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
