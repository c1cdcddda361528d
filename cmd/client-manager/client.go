package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/startup"
)

// clientSecretBytes is the entropy of generated client secrets.
const clientSecretBytes = 32

type newClientOptions struct {
	id           string
	name         string
	redirectURIs []string
	scopes       []string
	grantTypes   []string
	seedFile     string
	cost         int
}

func newNewClientCmd() *cobra.Command {
	opts := &newClientOptions{}

	cmd := &cobra.Command{
		Use:   "new-client",
		Short: "Generate credentials for a new OAuth2 client",
		Long: `Generate a client id and secret for a new OAuth2 client. The plaintext secret
is printed once. With --seed-file the client is appended to that seed file
with the secret stored as a bcrypt hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNewClient(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "client id (generated when empty)")
	cmd.Flags().StringVar(&opts.name, "name", "", "human readable client name")
	cmd.Flags().StringSliceVar(&opts.redirectURIs, "redirect-uri", nil, "registered redirect URI (repeatable)")
	cmd.Flags().StringSliceVar(&opts.scopes, "scopes", []string{"openid", "profile"}, "allowed scopes")
	cmd.Flags().StringSliceVar(&opts.grantTypes, "grants",
		[]string{"authorization_code", "refresh_token"}, "allowed grant types")
	cmd.Flags().StringVar(&opts.seedFile, "seed-file", "", "clients seed file to append to")
	cmd.Flags().IntVar(&opts.cost, "cost", auth.BcryptCost, "bcrypt cost factor for the stored hash")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("redirect-uri")

	return cmd
}

func runNewClient(cmd *cobra.Command, opts *newClientOptions) error {
	if opts.id == "" {
		opts.id = "client-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	secret, err := auth.RandomHex(nil, clientSecretBytes)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Client ID:     %s\n", opts.id)
	fmt.Fprintf(out, "Client Secret: %s\n", secret)

	if opts.seedFile == "" {
		return nil
	}

	hash, err := auth.HashSecretWithCost(secret, opts.cost)
	if err != nil {
		return err
	}

	entry := startup.ClientSeed{
		ClientID:     opts.id,
		ClientSecret: hash,
		Name:         opts.name,
		RedirectURIs: opts.redirectURIs,
		Scopes:       opts.scopes,
		GrantTypes:   opts.grantTypes,
	}
	if err = appendClientSeed(opts.seedFile, entry); err != nil {
		return err
	}

	fmt.Fprintf(out, "Appended to %s (store the secret now, only its hash was written)\n", opts.seedFile)
	return nil
}

// appendClientSeed adds entry to the seed file at path, creating the file if
// it does not exist. Duplicate client ids are rejected.
func appendClientSeed(path string, entry startup.ClientSeed) error {
	cleanPath := filepath.Clean(path)
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("seed file must be a JSON file")
	}

	var file startup.ClientSeedFile
	// #nosec G304 - operator supplied path on a local tool
	data, err := os.ReadFile(cleanPath)
	switch {
	case err == nil:
		if err = json.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse seed file: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	for _, existing := range file.Clients {
		if existing.ClientID == entry.ClientID {
			return fmt.Errorf("client %q already exists in %s", entry.ClientID, cleanPath)
		}
	}
	file.Clients = append(file.Clients, entry)

	data, err = json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode seed file: %w", err)
	}
	if err = os.WriteFile(cleanPath, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write seed file: %w", err)
	}
	return nil
}
