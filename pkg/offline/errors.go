package offline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when neither the network nor the cache can
	// serve a request.
	ErrUnavailable = errors.New("content unavailable offline")

	// ErrInstallFailed is returned when the essential shell cannot be cached.
	ErrInstallFailed = errors.New("install failed")

	// ErrInvalidState is returned when a lifecycle step runs out of order.
	ErrInvalidState = errors.New("invalid lifecycle state")

	// ErrInvalidConfig indicates the manager configuration is unusable.
	ErrInvalidConfig = errors.New("invalid offline cache configuration")

	// ErrUnknownSyncTag is returned for background-sync tags nobody handles.
	ErrUnknownSyncTag = errors.New("unknown sync tag")

	errSealed = fmt.Errorf("%w: cache writes stopped", ErrInvalidState)
)
