package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishQueuesEnvelope(t *testing.T) {
	hub := NewHub(nil)
	hub.Publish("invoice.generated", map[string]string{"id": "abc"})

	require.Len(t, hub.Broadcast, 1)
	var msg struct {
		Event   string            `json:"event"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-hub.Broadcast, &msg))
	assert.Equal(t, "invoice.generated", msg.Event)
	assert.Equal(t, "abc", msg.Payload["id"])
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < cap(hub.Broadcast)+10; i++ {
		hub.Publish("stock.movement_posted", i)
	}
	assert.Len(t, hub.Broadcast, cap(hub.Broadcast))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestRoleAllowed(t *testing.T) {
	assert.True(t, roleAllowed("admin", []string{"admin", "manager"}))
	assert.False(t, roleAllowed("staff", []string{"admin", "manager"}))
	assert.True(t, roleAllowed("staff", nil))
	assert.False(t, roleAllowed("", nil))
}
