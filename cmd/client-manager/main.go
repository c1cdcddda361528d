// Package main provides the client-manager CLI: offline tooling for the SSO
// service that hashes secrets, generates client seed entries and inspects
// issued tokens.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeInvalidToken indicates inspect-token rejected the token.
	ExitCodeInvalidToken = 2
)

var version = "dev"

// invalidTokenError marks a token that failed verification.
type invalidTokenError struct {
	err error
}

func (e *invalidTokenError) Error() string { return "invalid token: " + e.err.Error() }
func (e *invalidTokenError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "client-manager",
		Short: "Manage OAuth2 clients and credentials for the SSO service",
		Long: `client-manager prepares credentials for the SSO service without talking to it:
it hashes client secrets and passwords, appends new clients to a seed file
and decodes or verifies issued JWTs.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "client-manager version %s\n" .Version}}`)

	root.AddCommand(newHashSecretCmd())
	root.AddCommand(newNewClientCmd())
	root.AddCommand(newInspectTokenCmd())
	return root
}

func exitCode(err error) int {
	var invalid *invalidTokenError
	if errors.As(err, &invalid) {
		return ExitCodeInvalidToken
	}
	return ExitCodeError
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
	os.Exit(ExitCodeSuccess)
}
