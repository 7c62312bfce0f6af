// Package credential finds the login secret for a server account.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

const (
	serviceName = "imap-flagsync"

	// EnvSecret holds the password, or the access token with XOAUTH2.
	EnvSecret = "FLAGSYNC_PASSWORD"
)

// ErrNoSecret is returned when no source could provide a secret.
var ErrNoSecret = errors.New("no password available")

// Source tells where a secret came from.
type Source int

const (
	SourceEnv Source = iota
	SourceKeyring
	SourcePrompt
)

func (s Source) String() string {
	switch s {
	case SourceEnv:
		return "environment"
	case SourceKeyring:
		return "keyring"
	case SourcePrompt:
		return "prompt"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Key is the keyring entry for an account.
func Key(user, host string) string {
	return user + "@" + host
}

// Resolver looks a secret up in the environment, then the keyring, then
// asks on the terminal.
type Resolver struct {
	Getenv func(string) string
	Open   func() (keyring.Keyring, error)
	// Prompt is nil when there is no terminal to ask on.
	Prompt func(label string) (string, error)
}

// NewResolver returns a Resolver backed by the process environment, the
// system keyring and stdin when it is a terminal.
func NewResolver() *Resolver {
	r := &Resolver{Getenv: os.Getenv, Open: openKeyring}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		r.Prompt = terminalPrompt
	}
	return r
}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
		},
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func terminalPrompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// Lookup returns the secret for user at host and where it was found. A
// keyring that cannot be opened or has no entry is not an error; the next
// source is tried.
func (r *Resolver) Lookup(user, host string) (string, Source, error) {
	if r.Getenv != nil {
		if secret := r.Getenv(EnvSecret); secret != "" {
			return secret, SourceEnv, nil
		}
	}

	if r.Open != nil {
		if ring, err := r.Open(); err == nil {
			item, err := ring.Get(Key(user, host))
			if err == nil && len(item.Data) > 0 {
				return string(item.Data), SourceKeyring, nil
			}
		}
	}

	if r.Prompt == nil {
		return "", SourcePrompt, fmt.Errorf("%w for %s: set %s or store one in the keyring", ErrNoSecret, Key(user, host), EnvSecret)
	}
	secret, err := r.Prompt(fmt.Sprintf("Password for %s: ", Key(user, host)))
	if err != nil {
		return "", SourcePrompt, err
	}
	if secret == "" {
		return "", SourcePrompt, fmt.Errorf("%w for %s: empty input", ErrNoSecret, Key(user, host))
	}
	return secret, SourcePrompt, nil
}

// Save stores secret in the keyring.
func (r *Resolver) Save(user, host, secret string) error {
	if r.Open == nil {
		return errors.New("no keyring configured")
	}
	ring, err := r.Open()
	if err != nil {
		return err
	}
	err = ring.Set(keyring.Item{
		Key:         Key(user, host),
		Data:        []byte(secret),
		Label:       "imap-flagsync " + Key(user, host),
		Description: "IMAP password",
	})
	if err != nil {
		return fmt.Errorf("saving credential %q: %w", Key(user, host), err)
	}
	return nil
}
