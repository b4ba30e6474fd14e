package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/galeview/pkg/storage"
)

const maxCredentialSize = 1 << 20 // 1MB limit for all credential inputs

// credentialStore is the keyring used by the auth commands. Tests replace it.
var credentialStore storage.CredentialStore = storage.NewKeyringCredentialStore()

// isOnlyWhitespace checks if a byte slice contains only Unicode whitespace characters
// without allocating strings. Returns true if empty or whitespace-only.
func isOnlyWhitespace(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			// Invalid UTF-8 is treated as non-whitespace
			return false
		}
		if !unicode.IsSpace(r) {
			return false
		}
		i += size
	}
	return true
}

// NewAuthCommand creates the auth command managing the broker token
func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the broker token",
		Long: `Manage the id token sent to the broker as a bearer token.
The token is stored in your system's native credential store (Keychain on macOS,
Credential Manager on Windows, Secret Service on Linux) and never in plain text files.
GALEVIEW_TOKEN takes priority over the stored token.`,
	}

	cmd.AddCommand(newAuthLoginCommand())
	cmd.AddCommand(newAuthLogoutCommand())
	cmd.AddCommand(newAuthStatusCommand())

	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var (
		token    string
		useStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the broker token in the system keyring",
		Long: `Store the broker token in the system keyring.

Examples:
  # Interactive prompt (recommended for local use)
  galeview auth login

  # From stdin (recommended for automation/CI/CD)
  printf '%s' "$BROKER_TOKEN" | galeview auth login --stdin

  # Inline (NOT recommended - visible in shell history)
  galeview auth login --token eyJhbGciOi...

Note:
  - All input methods have a 1MB maximum token size limit
  - Only trailing CR/LF characters are removed from stdin input
  - Whitespace-only tokens are rejected`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string

			switch {
			case useStdin:
				inputBytes, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxCredentialSize+1))

				// Ensure buffer is zeroed on all exit paths
				defer func() {
					for i := range inputBytes {
						inputBytes[i] = 0
					}
				}()

				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
				if len(inputBytes) > maxCredentialSize {
					return fmt.Errorf("token exceeds maximum size of %d bytes", maxCredentialSize)
				}

				trimmed := bytes.TrimRight(inputBytes, "\r\n")
				if len(trimmed) == 0 {
					return fmt.Errorf("token cannot be empty")
				}
				if isOnlyWhitespace(trimmed) {
					return fmt.Errorf("token cannot contain only whitespace characters")
				}
				value = string(trimmed)

			case token != "":
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Warning: Using --token flag exposes the token in shell history.")

				if len(token) > maxCredentialSize {
					return fmt.Errorf("token exceeds maximum size of %d bytes", maxCredentialSize)
				}
				if strings.TrimSpace(token) == "" {
					return fmt.Errorf("token cannot contain only whitespace characters")
				}
				value = token

			default:
				_, _ = fmt.Fprint(cmd.OutOrStdout(), "Broker token: ")

				// Read password without echo
				passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
				_, _ = fmt.Fprintln(cmd.OutOrStdout())

				defer func() {
					for i := range passwordBytes {
						passwordBytes[i] = 0
					}
				}()

				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				if len(passwordBytes) > maxCredentialSize {
					return fmt.Errorf("token exceeds maximum size of %d bytes", maxCredentialSize)
				}
				if isOnlyWhitespace(passwordBytes) {
					return fmt.Errorf("token cannot be empty")
				}
				value = string(passwordBytes)
			}

			if err := credentialStore.Set(storage.BrokerTokenKey, value); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "✓ Broker token stored in the system keyring")
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Token value (optional - will prompt securely if omitted)")
	cmd.Flags().BoolVar(&useStdin, "stdin", false, "Read the token from stdin")
	cmd.MarkFlagsMutuallyExclusive("stdin", "token")

	return cmd
}

func newAuthLogoutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the broker token from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := credentialStore.Delete(storage.BrokerTokenKey)
			if errors.Is(err, storage.ErrCredentialNotFound) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No broker token stored.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to remove token: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "✓ Broker token removed")
			return nil
		},
	}
	return cmd
}

func newAuthStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where the broker token comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			endpoint := defaultBrokerEndpoint
			if GlobalConfig.App != nil {
				endpoint = GlobalConfig.App.Broker.Endpoint
			}
			_, _ = fmt.Fprintf(out, "Broker:  %s\n", endpoint)

			source := storage.BrokerTokenSource{Store: credentialStore}
			switch source.TokenSourceName() {
			case "env":
				_, _ = fmt.Fprintf(out, "Token:   from %s\n", storage.TokenEnvVar)
			case "keyring":
				_, _ = fmt.Fprintln(out, "Token:   stored in the system keyring")
			default:
				_, _ = fmt.Fprintln(out, "Token:   none (requests are sent without authorization)")
			}
			return nil
		},
	}
	return cmd
}
