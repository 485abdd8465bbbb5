package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/internal/auth"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var tokenCmd = &cobra.Command{
	Use:   "token <username>",
	Short: "Mint a local access token for a configured user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.Mode != "local" {
			return fmt.Errorf("auth mode is %q; tokens are only issued in local mode", cfg.Auth.Mode)
		}
		if _, ok := cfg.Auth.Users[args[0]]; !ok {
			return fmt.Errorf("user %q is not configured", args[0])
		}
		token, err := auth.NewLocalProvider(cfg.Auth).IssueToken(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for the [auth.users] table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(0)
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return validPassword(string(b))
	}
	var line string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return validPassword(line)
}

func validPassword(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("password must not be empty")
	}
	return p, nil
}
