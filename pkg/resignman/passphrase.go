package resignman

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/term"
)

type ErrPassphrase struct {
	KeyStem string
}

func (e ErrPassphrase) Error() string {
	return fmt.Sprintf("could not obtain passphrase for key: %s", e.KeyStem)
}

// PassphraseSource obtains the passphrase protecting a private key.
type PassphraseSource interface {
	Passphrase(keyStem string) (string, error)
}

// TerminalPassphraseSource prompts for passphrases on the controlling
// terminal. A passphrase may also be supplied non-interactively through an
// environment variable derived from the key stem, for pipeline use.
type TerminalPassphraseSource struct {
	// Prompt is where prompts are written (normally stderr).
	Prompt io.Writer
	// EnvPrefix is the prefix for the passphrase environment variables.
	EnvPrefix string
}

// envVarName mangles a key stem into an environment variable name.
func (t *TerminalPassphraseSource) envVarName(keyStem string) string {
	mangled := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, keyStem)
	return fmt.Sprintf("%s_PASSPHRASE_%s", t.EnvPrefix, mangled)
}

func (t *TerminalPassphraseSource) Passphrase(keyStem string) (string, error) {
	if passphrase := os.Getenv(t.envVarName(keyStem)); passphrase != "" {
		return passphrase, nil
	}
	fmt.Fprintf(t.Prompt, "Enter passphrase for %s: ", keyStem)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(t.Prompt)
	if err != nil {
		return "", err
	}
	return string(passphrase), nil
}

// StaticPassphraseSource serves passphrases from a fixed map.
type StaticPassphraseSource map[string]string

func (s StaticPassphraseSource) Passphrase(keyStem string) (string, error) {
	passphrase, found := s[keyStem]
	if !found {
		return "", &ErrPassphrase{KeyStem: keyStem}
	}
	return passphrase, nil
}

// PassphraseCache requests each distinct key's passphrase from the underlying
// source exactly once. CollectAll front-loads acquisition so interactive
// prompting is finished before any signing starts.
type PassphraseCache struct {
	m      *sync.Mutex
	source PassphraseSource
	cache  map[string]string
}

func NewPassphraseCache(source PassphraseSource) *PassphraseCache {
	return &PassphraseCache{
		m:      &sync.Mutex{},
		source: source,
		cache:  map[string]string{},
	}
}

// CollectAll acquires passphrases for every listed key stem in order.
func (p *PassphraseCache) CollectAll(keyStems []string) error {
	for _, keyStem := range keyStems {
		if _, err := p.Get(keyStem); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the cached passphrase for keyStem, requesting it from the
// source on first access. Safe for concurrent lookups during parallel
// signing.
func (p *PassphraseCache) Get(keyStem string) (string, error) {
	p.m.Lock()
	defer p.m.Unlock()
	if passphrase, found := p.cache[keyStem]; found {
		return passphrase, nil
	}
	passphrase, err := p.source.Passphrase(keyStem)
	if err != nil {
		return "", err
	}
	p.cache[keyStem] = passphrase
	return passphrase, nil
}
