package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skingford/sso-web/internal/auth"
)

func newHashSecretCmd() *cobra.Command {
	var (
		cost   int
		verify string
	)

	cmd := &cobra.Command{
		Use:   "hash-secret [secret]",
		Short: "Hash a client secret or password with bcrypt",
		Long: `Hash a client secret or password for use in a seed file. The secret is read
from the first line of stdin when no argument is given. With --verify the
secret is checked against an existing hash instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := secretArg(cmd, args)
			if err != nil {
				return err
			}

			if verify != "" {
				if err = auth.VerifySecret(verify, secret); err != nil {
					return errors.New("secret does not match hash")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "match")
				return nil
			}

			hash, err := auth.HashSecretWithCost(secret, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", auth.BcryptCost, "bcrypt cost factor")
	cmd.Flags().StringVar(&verify, "verify", "", "bcrypt hash to check the secret against")
	return cmd
}

func secretArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return "", auth.ErrEmptySecret
	}
	return strings.TrimSpace(scanner.Text()), nil
}
