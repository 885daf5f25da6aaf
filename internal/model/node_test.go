package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNodeHealthyRequiresRecentHeartbeatAndLowFailures(t *testing.T) {
	n := NewNode("n1", "localhost", 9511, []int{0, 1, 2, 3})
	now := time.Now()

	n.LastHeartbeat = now
	assert.True(t, n.Healthy(now), "fresh heartbeat, no failures")

	n.LastHeartbeat = now.Add(-301 * time.Second)
	assert.False(t, n.Healthy(now), "heartbeat older than 300s is unhealthy")

	n.LastHeartbeat = now
	n.FailureCount = 3
	assert.False(t, n.Healthy(now), "3 consecutive failures is unhealthy regardless of heartbeat age")
}

func TestNodeAddr(t *testing.T) {
	n := NewNode("n1", "10.0.0.5", 9511, nil)
	assert.Equal(t, "10.0.0.5:9511", n.Addr())
}
