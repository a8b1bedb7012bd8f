package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	metricspkg "github.com/drblury/reactorflow/internal/runtime/metrics"
)

func TestFrameHooksMergeCallsBothInOrder(t *testing.T) {
	var calls []string
	a := FrameHooks{
		OnReceive: func(FrameContext) { calls = append(calls, "a.receive") },
		OnDone:    func(FrameContext) { calls = append(calls, "a.done") },
	}
	b := FrameHooks{
		OnReceive: func(FrameContext) { calls = append(calls, "b.receive") },
		OnError:   func(FrameContext) { calls = append(calls, "b.error") },
	}
	merged := a.Merge(b)

	merged.receive(FrameContext{})
	merged.done(FrameContext{Result: metricspkg.ResultOK})
	merged.done(FrameContext{Result: metricspkg.ResultDecodeError})

	assert.Equal(t, []string{"a.receive", "b.receive", "a.done", "b.error"}, calls)
}

func TestFrameHooksNilAreSkipped(t *testing.T) {
	var h FrameHooks
	assert.NotPanics(t, func() {
		h.receive(FrameContext{})
		h.done(FrameContext{Result: metricspkg.ResultOK})
		h.done(FrameContext{Result: metricspkg.ResultBounds})
	})
	assert.Nil(t, h.Merge(FrameHooks{}).OnDone)
}

func TestAlertingHooksOnlyFireOnFailures(t *testing.T) {
	var alerts []metricspkg.Result
	h := AlertingHooks(func(fc FrameContext) { alerts = append(alerts, fc.Result) })

	h.done(FrameContext{Result: metricspkg.ResultOK})
	h.done(FrameContext{Result: metricspkg.ResultUnhandled})

	assert.Equal(t, []metricspkg.Result{metricspkg.ResultUnhandled}, alerts)
}
