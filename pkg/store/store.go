// Package store implements the persistent cache store used by the offline
// cache manager: named namespaces of entries kept in insertion order.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
)

// ErrInvalidName is returned for namespace names a backend cannot address.
var ErrInvalidName = errors.New("invalid namespace name")

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Store is a key-value store partitioned into named namespaces.
type Store interface {
	// Open returns the namespace with the given name, creating it if needed.
	Open(ctx context.Context, name string) (Namespace, error)

	// Names lists existing namespaces, sorted.
	Names(ctx context.Context) ([]string, error)

	// Drop deletes a namespace and every entry in it.
	// It reports whether the namespace existed.
	Drop(ctx context.Context, name string) (bool, error)

	// Layer names the backend for metrics and logs.
	Layer() string
}

// Namespace is a single partition of a Store.
//
// Keys are unique. Put on an existing key replaces the entry and moves it
// to the end of the insertion order.
type Namespace interface {
	Name() string

	// Put stores entry under key.
	Put(ctx context.Context, key cache.Key, entry *cache.Entry) error

	// Match returns the entry for key or cache.ErrCacheMiss.
	Match(ctx context.Context, key cache.Key) (*cache.Entry, error)

	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key cache.Key) (bool, error)

	// Keys lists keys oldest first.
	Keys(ctx context.Context) ([]cache.Key, error)
}

// ValidateName checks that a namespace name is safe for every backend.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
