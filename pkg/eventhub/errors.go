package eventhub

import (
	"errors"
	"fmt"
)

// Sentinel errors for extension registration.
var (
	// ErrInvalidExtensionName indicates an extension reported an empty name
	// or tried to use a name reserved by the hub.
	ErrInvalidExtensionName = errors.New("invalid extension name")

	// ErrDuplicateExtensionName indicates an extension with the same name was
	// already registered with this hub.
	ErrDuplicateExtensionName = errors.New("duplicate extension name")

	// ErrNilFactory indicates RegisterExtension was called without a factory.
	ErrNilFactory = errors.New("extension factory is nil")
)

// Sentinel errors for hub operations.
var (
	// ErrExtensionNotFound indicates an operation named an extension that is
	// not registered.
	ErrExtensionNotFound = errors.New("extension not registered")

	// ErrHubShutdown indicates the hub no longer accepts work.
	ErrHubShutdown = errors.New("event hub is shut down")
)

// RegistrationError wraps a failed extension registration.
type RegistrationError struct {
	// Extension is the name the extension reported, if it got that far.
	Extension string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("register extension: %v", e.Err)
	}
	return fmt.Sprintf("register extension %q: %v", e.Extension, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RegistrationError) Unwrap() error {
	return e.Err
}
