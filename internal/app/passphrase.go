package app

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ResolvePassphrase returns the key passphrase for signing operations.
// When the config names a passphrase file (unattended runs), its trimmed
// contents are used; otherwise the user is prompted on the terminal with
// echo disabled.
func (a *LedgerApp) ResolvePassphrase() (string, error) {
	if file := a.cfg.Keys.PassphraseFile; file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading passphrase file: %w", err)
		}
		pass := strings.TrimSpace(string(data))
		if pass == "" {
			return "", fmt.Errorf("passphrase file %s is empty", file)
		}
		return pass, nil
	}

	fmt.Fprint(os.Stderr, "Key passphrase: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	pass := strings.TrimSpace(string(raw))
	if pass == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	return pass, nil
}
