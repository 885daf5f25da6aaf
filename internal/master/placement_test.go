package master

import (
	"testing"
	"time"

	"github.com/mgpu-project/mgpu/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHealthyNode(id string, total []int, now time.Time) *model.Node {
	n := model.NewNode(id, "localhost", 9500, total)
	n.LastHeartbeat = now
	return n
}

func TestPlacePinnedSucceedsWhenGPUsFree(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()
	m.nodes["n1"] = newHealthyNode("n1", []int{0, 1, 2, 3}, now)

	job := &model.Job{Request: model.ResourceRequest{
		Kind:   model.KindPinned,
		Pinned: map[string][]int{"n1": {0, 1}},
	}}

	assign, reason := m.placePinned(job, now)
	require.Empty(t, reason)
	assert.Equal(t, []int{0, 1}, assign["n1"])
}

func TestPlacePinnedFailsOnUnknownNode(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()

	job := &model.Job{Request: model.ResourceRequest{
		Kind:   model.KindPinned,
		Pinned: map[string][]int{"ghost": {0}},
	}}

	_, reason := m.placePinned(job, now)
	assert.Contains(t, reason, "not registered")
}

func TestPlacePinnedFailsWhenGPUsNotFree(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()
	node := newHealthyNode("n1", []int{0, 1}, now)
	node.Available.Remove(0)
	m.nodes["n1"] = node

	job := &model.Job{Request: model.ResourceRequest{
		Kind:   model.KindPinned,
		Pinned: map[string][]int{"n1": {0}},
	}}

	_, reason := m.placePinned(job, now)
	assert.Contains(t, reason, "does not have gpus")
}

func TestPlaceShapedPrefersNodesWithMostFreeGPUs(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()

	nodeA := newHealthyNode("a", []int{0, 1, 2, 3}, now) // 4 free
	nodeB := newHealthyNode("b", []int{0, 1, 2, 3}, now)
	nodeB.Available.Remove(0) // 3 free
	m.nodes["a"] = nodeA
	m.nodes["b"] = nodeB

	job := &model.Job{Request: model.ResourceRequest{
		Kind: model.KindShaped, NodeCount: 1, GPUsPerNode: 2,
	}}

	assign, reason := m.placeShaped(job, now)
	require.Empty(t, reason)
	_, gotB := assign["b"]
	assert.False(t, gotB, "candidates are taken in descending order of free gpus, so a (4 free) goes before b (3 free)")
	assert.Contains(t, assign, "a")
}

func TestPlaceShapedFailsWhenNotEnoughQualifyingNodes(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()
	m.nodes["a"] = newHealthyNode("a", []int{0, 1}, now)

	job := &model.Job{Request: model.ResourceRequest{
		Kind: model.KindShaped, NodeCount: 2, GPUsPerNode: 2,
	}}

	_, reason := m.placeShaped(job, now)
	assert.Contains(t, reason, "only 1 qualify")
}

func TestPlaceShapedRespectsExcludeNodes(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()
	m.nodes["a"] = newHealthyNode("a", []int{0, 1}, now)
	m.nodes["b"] = newHealthyNode("b", []int{0, 1}, now)

	job := &model.Job{Request: model.ResourceRequest{
		Kind: model.KindShaped, NodeCount: 1, GPUsPerNode: 2,
		ExcludeNodes: []string{"a"},
	}}

	assign, reason := m.placeShaped(job, now)
	require.Empty(t, reason)
	assert.Contains(t, assign, "b")
	assert.NotContains(t, assign, "a")
}

func TestPlaceFlatPicksBestFit(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()

	big := newHealthyNode("big", []int{0, 1, 2, 3, 4, 5, 6, 7}, now) // 8 free, residual 6
	small := newHealthyNode("small", []int{0, 1}, now)               // 2 free, residual 0
	m.nodes["big"] = big
	m.nodes["small"] = small

	job := &model.Job{Request: model.ResourceRequest{Kind: model.KindFlat, GPUsNeeded: 2}}

	assign, reason := m.placeFlat(job, now)
	require.Empty(t, reason)
	assert.Contains(t, assign, "small", "best-fit minimizes fragmentation")
}

func TestPlaceFlatSkipsUnhealthyNodes(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()

	stale := newHealthyNode("stale", []int{0, 1}, now)
	stale.LastHeartbeat = now.Add(-time.Hour)
	m.nodes["stale"] = stale

	job := &model.Job{Request: model.ResourceRequest{Kind: model.KindFlat, GPUsNeeded: 1}}

	_, reason := m.placeFlat(job, now)
	assert.Contains(t, reason, "no healthy node")
}

func TestPlaceFlatBreaksTiesByNodeID(t *testing.T) {
	m := New(DefaultConfig())
	now := time.Now()
	m.nodes["zzz"] = newHealthyNode("zzz", []int{0, 1}, now)
	m.nodes["aaa"] = newHealthyNode("aaa", []int{0, 1}, now)

	job := &model.Job{Request: model.ResourceRequest{Kind: model.KindFlat, GPUsNeeded: 2}}

	assign, reason := m.placeFlat(job, now)
	require.Empty(t, reason)
	assert.Contains(t, assign, "aaa")
}
