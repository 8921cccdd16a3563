package bridge

import "errors"

var (
	// ErrMissingApplicationCode rejects init without an application code.
	ErrMissingApplicationCode = errors.New("no application code provided")
	// ErrIncompleteStorage rejects a custom storage missing one of its operations.
	ErrIncompleteStorage = errors.New("incomplete message storage")
	// ErrStorageConflict rejects a configuration enabling both custom and default storage.
	ErrStorageConflict = errors.New("custom message storage and default message storage are mutually exclusive")
	// ErrBoundaryUnavailable is reported when a call cannot cross into the native layer.
	ErrBoundaryUnavailable = errors.New("native boundary unavailable")
	// ErrUnknownAction is returned by a boundary for an action it does not serve.
	ErrUnknownAction = errors.New("unknown boundary action")
	// ErrNotInitialized is reported by the native layer for calls made before init.
	ErrNotInitialized = errors.New("mobile messaging is not initialized")
	// ErrAlreadyInitialized rejects a second init on the same bridge.
	ErrAlreadyInitialized = errors.New("mobile messaging is already initialized")
	// ErrInvalidArguments is reported when a call carries arguments of the wrong shape.
	ErrInvalidArguments = errors.New("invalid arguments")
)
