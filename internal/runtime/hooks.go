package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/reactorflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/reactorflow/internal/runtime/metadata"
	metricspkg "github.com/drblury/reactorflow/internal/runtime/metrics"
)

// FrameContext describes one consumed frame to hooks.
type FrameContext struct {
	// UUID is the id of the carrying transport message.
	UUID string
	// Source names the sending reactor, when it set one.
	Source string
	// TypeID is the wire type id the sender declared in metadata. The frame
	// header is authoritative.
	TypeID string
	// Metadata is a copy of the message metadata.
	Metadata metadatapkg.Metadata
	// Context is the message context.
	Context context.Context
	// StartedAt is when the reactor began processing the frame.
	StartedAt time.Time
	// Length is the frame size in bytes.
	Length int
	// Duration and Result are only set for OnDone and OnError.
	Duration time.Duration
	Result   metricspkg.Result
}

// FrameHooks observe consumed frames. Nil hooks are skipped. Hooks run on
// the consuming goroutine and must not block.
type FrameHooks struct {
	// OnReceive runs before the frame is decoded.
	OnReceive func(FrameContext)
	// OnDone runs when Result is ResultOK. In sync dispatch that means every
	// handler returned nil. In queued dispatch it only means the message was
	// enqueued: handlers run later on the worker and their failures go to the
	// dispatcher's error callback and metrics, not to these hooks.
	OnDone func(FrameContext)
	// OnError runs for every other outcome. FrameContext.Result says which.
	OnError func(FrameContext)
}

// Merge returns hooks calling h first, then other.
func (h FrameHooks) Merge(other FrameHooks) FrameHooks {
	return FrameHooks{
		OnReceive: chainHooks(h.OnReceive, other.OnReceive),
		OnDone:    chainHooks(h.OnDone, other.OnDone),
		OnError:   chainHooks(h.OnError, other.OnError),
	}
}

func chainHooks(a, b func(FrameContext)) func(FrameContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(fc FrameContext) {
		a(fc)
		b(fc)
	}
}

func (h FrameHooks) receive(fc FrameContext) {
	if h.OnReceive != nil {
		h.OnReceive(fc)
	}
}

func (h FrameHooks) done(fc FrameContext) {
	if fc.Result == metricspkg.ResultOK {
		if h.OnDone != nil {
			h.OnDone(fc)
		}
		return
	}
	if h.OnError != nil {
		h.OnError(fc)
	}
}

// LoggingHooks log completed and failed frames.
func LoggingHooks(logger loggingpkg.ServiceLogger) FrameHooks {
	return FrameHooks{
		OnDone: func(fc FrameContext) {
			logger.Debug("Frame handled", loggingpkg.LogFields{
				"message_uuid": fc.UUID,
				"source":       fc.Source,
				"duration_ms":  fc.Duration.Milliseconds(),
			})
		},
		OnError: func(fc FrameContext) {
			logger.Info("Frame not handled", loggingpkg.LogFields{
				"message_uuid": fc.UUID,
				"source":       fc.Source,
				"type_id":      fc.TypeID,
				"result":       fc.Result.String(),
			})
		},
	}
}

// AlertingHooks calls alert for every frame that was not handled cleanly.
func AlertingHooks(alert func(FrameContext)) FrameHooks {
	return FrameHooks{OnError: alert}
}
