// Package fragment turns inbound transport fragments into dispatched
// messages. It is the single entry point a subscriber calls per payload.
package fragment

import (
	"errors"
	"fmt"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/logging"
	"github.com/drblury/reactorflow/internal/runtime/messagepool"
	"github.com/drblury/reactorflow/internal/runtime/metrics"
	"github.com/drblury/reactorflow/internal/runtime/wire"
)

// Decoder reads one frame into a pooled message.
type Decoder interface {
	Decode(buf []byte, off, length int, pool wire.Pool) (messagepool.Message, error)
}

// Acceptor takes ownership of decoded messages.
type Acceptor interface {
	Accept(msg messagepool.Message) error
}

// Recorder counts fragment outcomes.
type Recorder interface {
	Fragment(result metrics.Result)
}

// Handler decodes fragments and hands them to the dispatcher. Every decoded
// message is released exactly once: by the codec when decoding fails, by the
// dispatcher otherwise.
type Handler struct {
	decoder  Decoder
	pool     wire.Pool
	acceptor Acceptor
	logger   logging.ServiceLogger
	recorder Recorder
}

// New wires a Handler. recorder may be nil.
func New(decoder Decoder, pool wire.Pool, acceptor Acceptor, logger logging.ServiceLogger, recorder Recorder) (*Handler, error) {
	switch {
	case decoder == nil:
		return nil, fmt.Errorf("%w: decoder is required", errspkg.ErrConfiguration)
	case pool == nil:
		return nil, fmt.Errorf("%w: pool is required", errspkg.ErrConfiguration)
	case acceptor == nil:
		return nil, fmt.Errorf("%w: dispatcher is required", errspkg.ErrConfiguration)
	case logger == nil:
		return nil, errspkg.ErrLoggerRequired
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Handler{
		decoder:  decoder,
		pool:     pool,
		acceptor: acceptor,
		logger:   logger.With(logging.LogFields{"component": "fragment"}),
		recorder: recorder,
	}, nil
}

// Process decodes buf[offset:offset+length] and dispatches the result,
// returning whatever went wrong.
func (h *Handler) Process(buf []byte, offset, length int) error {
	msg, err := h.decoder.Decode(buf, offset, length, h.pool)
	if err != nil {
		return err
	}
	return h.acceptor.Accept(msg)
}

// Handle runs Process, counts the outcome and logs failures. The only error
// it returns is a rejection by a dispatcher that is not running, which a
// redelivery can still succeed on; every other failure is final.
func (h *Handler) Handle(buf []byte, offset, length int) (metrics.Result, error) {
	err := h.Process(buf, offset, length)
	result := Classify(err)
	h.recorder.Fragment(result)
	if err == nil {
		return result, nil
	}
	if result == metrics.ResultRejected {
		return result, err
	}
	h.logger.Error("dropping fragment", err, logging.LogFields{
		"result": result.String(),
		"offset": offset,
		"length": length,
	})
	return result, nil
}

// HandleFragment is Handle for callers that cannot act on errors: failures
// are logged and counted, never returned or raised.
func (h *Handler) HandleFragment(buf []byte, offset, length int) {
	if _, err := h.Handle(buf, offset, length); err != nil {
		h.logger.Error("dropping fragment", err, logging.LogFields{
			"result": metrics.ResultRejected.String(),
			"offset": offset,
			"length": length,
		})
	}
}

// Classify maps a Process error onto a metrics result.
func Classify(err error) metrics.Result {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, errspkg.ErrFragmentBounds):
		return metrics.ResultBounds
	case errors.Is(err, errspkg.ErrUnknownWireType):
		return metrics.ResultUnknownType
	case errors.Is(err, errspkg.ErrEncoding), errors.Is(err, errspkg.ErrTypeNotRegistered):
		return metrics.ResultDecodeError
	case errors.Is(err, errspkg.ErrUnhandledMessageType):
		return metrics.ResultUnhandled
	case errors.Is(err, errspkg.ErrNotRunning):
		return metrics.ResultRejected
	default:
		return metrics.ResultHandlerError
	}
}

type nopRecorder struct{}

func (nopRecorder) Fragment(metrics.Result) {}
