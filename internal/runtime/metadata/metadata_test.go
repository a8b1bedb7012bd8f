package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
)

func TestNewDropsTrailingKey(t *testing.T) {
	md := New("reactorflow_source", "ping", "reactorflow_type", "5", "dangling")
	assert.Equal(t, Metadata{"reactorflow_source": "ping", "reactorflow_type": "5"}, md)
	assert.Empty(t, New())
}

func TestCopiesDoNotAlias(t *testing.T) {
	base := Metadata{"reactorflow_source": "ping"}

	clone := base.Clone()
	clone["reactorflow_source"] = "pong"
	with := base.With("correlation_id", "c1")
	all := base.WithAll(Metadata{"reactorflow_source": "override", "reactorflow_type": "1"})

	assert.Equal(t, Metadata{"reactorflow_source": "ping"}, base)
	assert.Equal(t, "c1", with["correlation_id"])
	assert.Equal(t, "ping", with["reactorflow_source"])
	assert.Equal(t, Metadata{"reactorflow_source": "override", "reactorflow_type": "1"}, all)
}

func TestNilMetadata(t *testing.T) {
	var md Metadata
	assert.NotNil(t, md.Clone())
	assert.Equal(t, Metadata{"k": "v"}, md.WithAll(Metadata{"k": "v"}))
	assert.NotNil(t, FromWatermill(nil))
	assert.NotNil(t, ToWatermill(nil))
}

func TestWatermillConversionCopies(t *testing.T) {
	md := Metadata{"reactorflow_endpoint": "pong:40123"}
	wm := ToWatermill(md)
	wm["reactorflow_endpoint"] = "changed"
	assert.Equal(t, "pong:40123", md["reactorflow_endpoint"])

	back := FromWatermill(message.Metadata{"reactorflow_type": "5"})
	assert.Equal(t, Metadata{"reactorflow_type": "5"}, back)
}
