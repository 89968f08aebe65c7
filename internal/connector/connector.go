// Package connector resolves third-party service credentials, such as the
// messaging OAuth token, without the application keeping secrets in code.
package connector

import (
	"context"

	"github.com/99designs/keyring"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/config"
)

const serviceName = "tasks"

// ErrNoCredential is returned when no source holds a token for a connector.
var ErrNoCredential = errors.New("no credential configured")

type Connector interface {
	AccessToken(ctx context.Context, name string) (string, error)
}

// Keyring reads tokens stored under "connector/<name>" in the OS keyring.
type Keyring struct {
	ring keyring.Keyring
}

func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// OpenKeyring opens the system keyring with the usual backend fallbacks.
func OpenKeyring() (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/tasks/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("tasks-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening keyring")
	}
	return NewKeyring(ring), nil
}

func keyFor(name string) string {
	return "connector/" + name
}

func (k *Keyring) AccessToken(_ context.Context, name string) (string, error) {
	item, err := k.ring.Get(keyFor(name))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", errors.Wrapf(ErrNoCredential, "connector %q", name)
		}
		return "", errors.Wrapf(err, "getting credential for connector %q", name)
	}
	return string(item.Data), nil
}

// Store saves a token for a connector.
func (k *Keyring) Store(name, token string) error {
	err := k.ring.Set(keyring.Item{
		Key:   keyFor(name),
		Data:  []byte(token),
		Label: "tasks connector " + name,
	})
	if err != nil {
		return errors.Wrapf(err, "setting credential for connector %q", name)
	}
	return nil
}

// Env reads CONNECTOR_<NAME>_TOKEN from the environment or config.
type Env struct {
	lookup func(name string) string
}

func NewEnv() *Env {
	return &Env{lookup: config.NewConnectorTokens().Lookup}
}

func (e *Env) AccessToken(_ context.Context, name string) (string, error) {
	if token := e.lookup(name); token != "" {
		return token, nil
	}
	return "", errors.Wrapf(ErrNoCredential, "connector %q", name)
}

// Chain tries each connector in order and returns the first token found.
type Chain []Connector

func (c Chain) AccessToken(ctx context.Context, name string) (string, error) {
	for _, conn := range c {
		token, err := conn.AccessToken(ctx, name)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNoCredential) {
			log.Warnf("Connector source failed for %q: %v", name, err)
		}
	}
	return "", errors.Wrapf(ErrNoCredential, "connector %q", name)
}
