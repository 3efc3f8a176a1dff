package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetHeartbeatControlsPumpCadence(t *testing.T) {
	f := newBridgeFixture(t)

	assert.Equal(t, defaultPongWait, f.hub.pongWait)
	assert.Equal(t, (defaultPongWait*9)/10, f.hub.pingInterval)

	f.hub.SetHeartbeat(45*time.Second, 90*time.Second)
	assert.Equal(t, 45*time.Second, f.hub.pingInterval)
	assert.Equal(t, 90*time.Second, f.hub.pongWait)

	// The pong deadline must outlive the ping interval; bad pairs are
	// ignored.
	f.hub.SetHeartbeat(2*time.Minute, time.Minute)
	assert.Equal(t, 45*time.Second, f.hub.pingInterval)
	assert.Equal(t, 90*time.Second, f.hub.pongWait)

	f.hub.SetHeartbeat(0, time.Minute)
	assert.Equal(t, 45*time.Second, f.hub.pingInterval)
}
