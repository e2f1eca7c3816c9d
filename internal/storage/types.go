package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("storage: recipient not registered")
	ErrClosed   = errors.New("storage: store closed")
	ErrBadName  = errors.New("storage: empty recipient name")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store maps recipient names to chat addresses.
type Store interface {
	// Resolve returns the address registered for name.
	Resolve(ctx context.Context, name string) (chatID int64, ok bool, err error)
	// Register binds name to chatID and returns the address it replaced, if any.
	Register(ctx context.Context, name string, chatID int64) (prev int64, replaced bool, err error)
	// Unregister removes name and returns its address, or ErrNotFound.
	Unregister(ctx context.Context, name string) (chatID int64, err error)
	// Count returns the number of registered recipients.
	Count(ctx context.Context) (int, error)
	Close() error
}

// NormalizeName canonicalizes a recipient name: "  @Alice " becomes "alice".
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "@")
	return strings.ToLower(strings.TrimSpace(name))
}

func normalize(name string) (string, error) {
	n := NormalizeName(name)
	if n == "" {
		return "", ErrBadName
	}
	return n, nil
}
