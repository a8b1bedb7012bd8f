package errors

import (
	sterrors "errors"
	"fmt"
)

// Error classes. Specific errors wrap one of these so callers can match the
// class with errors.Is.
var (
	ErrConfiguration        = sterrors.New("reactorflow: configuration error")
	ErrUnknownWireType      = sterrors.New("reactorflow: unknown wire type")
	ErrUnhandledMessageType = sterrors.New("reactorflow: unhandled message type")
	ErrEncoding             = sterrors.New("reactorflow: encoding error")
	ErrTransport            = sterrors.New("reactorflow: transport error")
)

// Configuration errors.
var (
	ErrConfigRequired    = fmt.Errorf("%w: configuration is required", ErrConfiguration)
	ErrLoggerRequired    = fmt.Errorf("%w: logger is required", ErrConfiguration)
	ErrTypeNotRegistered = fmt.Errorf("%w: message type not registered", ErrConfiguration)
	ErrDuplicateCodec    = fmt.Errorf("%w: codec already registered for type id", ErrConfiguration)
	ErrSealed            = fmt.Errorf("%w: dispatcher is sealed", ErrConfiguration)
	ErrInvalidPoolSize   = fmt.Errorf("%w: invalid pool size", ErrConfiguration)
	ErrInvalidCapacity   = fmt.Errorf("%w: capacity must be a power of two", ErrConfiguration)
	ErrFactoryRequired   = fmt.Errorf("%w: factory is required", ErrConfiguration)
	ErrHandlerRequired   = fmt.Errorf("%w: handler function is required", ErrConfiguration)
)

// Encoding errors.
var (
	ErrBufferTooSmall     = fmt.Errorf("%w: buffer too small", ErrEncoding)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported frame version", ErrEncoding)
	ErrInvalidBool        = fmt.Errorf("%w: invalid bool sentinel", ErrEncoding)
	ErrTypeMismatch       = fmt.Errorf("%w: message type does not match codec", ErrEncoding)
	ErrNegativeLength     = fmt.Errorf("%w: negative length prefix", ErrEncoding)
	ErrFragmentBounds     = fmt.Errorf("%w: fragment outside buffer", ErrEncoding)
)

// Dispatch and transport errors.
var (
	ErrNotRunning        = sterrors.New("reactorflow: dispatcher is not running")
	ErrPublisherRequired = fmt.Errorf("%w: publisher is required", ErrTransport)
)

// Discovery errors.
var (
	ErrPeerNotFound     = sterrors.New("reactorflow: peer not found")
	ErrDuplicateName    = sterrors.New("reactorflow: name already registered")
	ErrDuplicateChannel = sterrors.New("reactorflow: channel already registered")
	ErrNameRequired     = sterrors.New("reactorflow: name is required")
	ErrInvalidEntry     = sterrors.New("reactorflow: invalid lookup entry")
)

// HandlerPanicError carries a value recovered from a panicking handler.
type HandlerPanicError struct {
	TypeID int32
	Value  any
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("reactorflow: handler for type %d panicked: %v", e.TypeID, e.Value)
}
