// Package passphrase resolves the secret that unlocks a game operator's
// keystore for gamed and gamectl.
package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultEnv is consulted when no variable is configured.
const DefaultEnv = "GAMED_OPERATOR_PASS"

// ErrMismatch is returned when the confirmation prompt differs.
var ErrMismatch = errors.New("passphrases do not match")

// Config selects where the passphrase comes from. File wins over EnvVar,
// which wins over an interactive prompt.
type Config struct {
	EnvVar string
	File   string
	// Confirm asks twice on the terminal. Use it when a new keystore is about
	// to be encrypted.
	Confirm bool
}

// Source resolves and caches an operator passphrase.
type Source struct {
	cfg Config

	isTerminal func() bool
	read       func(prompt string) (string, error)

	once  sync.Once
	value string
	err   error
}

// New builds a Source for cfg.
func New(cfg Config) *Source {
	cfg.EnvVar = strings.TrimSpace(cfg.EnvVar)
	if cfg.EnvVar == "" {
		cfg.EnvVar = DefaultEnv
	}
	cfg.File = strings.TrimSpace(cfg.File)
	return &Source{cfg: cfg, isTerminal: stdinIsTerminal, read: readTerminal}
}

// NewSource reads envVar before prompting.
func NewSource(envVar string) *Source {
	return New(Config{EnvVar: envVar})
}

// Get returns the passphrase. Blank passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.cfg.File != "" {
		data, err := os.ReadFile(s.cfg.File)
		if err != nil {
			return "", fmt.Errorf("read operator passphrase file: %w", err)
		}
		return nonBlank(strings.TrimRight(string(data), "\r\n"), s.cfg.File)
	}
	if value, ok := os.LookupEnv(s.cfg.EnvVar); ok {
		return nonBlank(value, s.cfg.EnvVar)
	}
	if !s.isTerminal() {
		return "", fmt.Errorf("operator passphrase required; set %s or run interactively", s.cfg.EnvVar)
	}

	first, err := s.read("Operator keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if _, err := nonBlank(first, "terminal input"); err != nil {
		return "", err
	}
	if s.cfg.Confirm {
		again, err := s.read("Repeat passphrase: ")
		if err != nil {
			return "", err
		}
		if again != first {
			return "", ErrMismatch
		}
	}
	return first, nil
}

func nonBlank(value, origin string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("operator passphrase from %s is empty", origin)
	}
	return value, nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func readTerminal(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}
