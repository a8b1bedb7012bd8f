package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrConfiguration", ErrConfiguration, "reactorflow: configuration error"},
		{"ErrUnknownWireType", ErrUnknownWireType, "reactorflow: unknown wire type"},
		{"ErrTypeNotRegistered", ErrTypeNotRegistered, "reactorflow: configuration error: message type not registered"},
		{"ErrBufferTooSmall", ErrBufferTooSmall, "reactorflow: encoding error: buffer too small"},
		{"ErrPeerNotFound", ErrPeerNotFound, "reactorflow: peer not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestErrorClasses(t *testing.T) {
	configErrs := []error{ErrConfigRequired, ErrTypeNotRegistered, ErrDuplicateCodec, ErrSealed, ErrInvalidPoolSize, ErrInvalidCapacity}
	for _, err := range configErrs {
		assert.ErrorIs(t, err, ErrConfiguration, err.Error())
		assert.NotErrorIs(t, err, ErrEncoding, err.Error())
	}

	encodingErrs := []error{ErrBufferTooSmall, ErrUnsupportedVersion, ErrInvalidBool, ErrTypeMismatch, ErrNegativeLength}
	for _, err := range encodingErrs {
		assert.ErrorIs(t, err, ErrEncoding, err.Error())
		assert.NotErrorIs(t, err, ErrConfiguration, err.Error())
	}

	assert.ErrorIs(t, ErrPublisherRequired, ErrTransport)
}

func TestWrappedSpecificErrorKeepsClass(t *testing.T) {
	err := fmt.Errorf("%w: type %d", ErrUnknownWireType, 42)
	assert.True(t, errors.Is(err, ErrUnknownWireType))
	assert.Equal(t, "reactorflow: unknown wire type: type 42", err.Error())
}

func TestHandlerPanicError(t *testing.T) {
	err := &HandlerPanicError{TypeID: 3, Value: "boom"}
	assert.Equal(t, "reactorflow: handler for type 3 panicked: boom", err.Error())

	var target *HandlerPanicError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	assert.Equal(t, int32(3), target.TypeID)
}
