package master

import (
	"fmt"
	"sort"
	"time"

	"github.com/mgpu-project/mgpu/internal/model"
)

// findPlacement implements spec.md §4.2's three-shape placement algorithm.
// Caller must hold m.mu. Returns a concrete assignment or a diagnosis of
// why none was found.
func (m *Master) findPlacement(job *model.Job, now time.Time) (model.Assignment, string) {
	switch job.Request.Kind {
	case model.KindPinned:
		return m.placePinned(job, now)
	case model.KindShaped:
		return m.placeShaped(job, now)
	default:
		return m.placeFlat(job, now)
	}
}

// placePinned honors the caller's exact {node_id -> [gpu_index,...]} mapping
// or fails outright: no fallback to other nodes, since that would violate
// the explicit placement contract (spec.md §4.2).
func (m *Master) placePinned(job *model.Job, now time.Time) (model.Assignment, string) {
	assign := make(model.Assignment, len(job.Request.Pinned))
	for nodeID, gpus := range job.Request.Pinned {
		node, ok := m.nodes[nodeID]
		if !ok {
			return nil, fmt.Sprintf("pinned node %s is not registered", nodeID)
		}
		if !node.Healthy(now) {
			return nil, fmt.Sprintf("pinned node %s is unhealthy (failure_count=%d)", nodeID, node.FailureCount)
		}
		if !node.Available.ContainsAll(gpus) {
			return nil, fmt.Sprintf("pinned node %s does not have gpus %v free", nodeID, gpus)
		}
		assign[nodeID] = append([]int(nil), gpus...)
	}
	return assign, ""
}

// placeShaped fills healthy, non-excluded nodes with >= gpus_per_node free,
// sorted by available count descending, ties by node id (fill-first packing:
// the nodes with the most free GPUs take the job, so nodes with few free
// GPUs stay intact), taking the first node_count.
func (m *Master) placeShaped(job *model.Job, now time.Time) (model.Assignment, string) {
	req := job.Request
	excluded := make(map[string]bool, len(req.ExcludeNodes))
	for _, n := range req.ExcludeNodes {
		excluded[n] = true
	}
	included := make(map[string]bool, len(req.IncludeNodes))
	for _, n := range req.IncludeNodes {
		included[n] = true
	}

	var candidates []*model.Node
	for id, node := range m.nodes {
		if excluded[id] {
			continue
		}
		if len(included) > 0 && !included[id] {
			continue
		}
		if !node.Healthy(now) {
			continue
		}
		if len(node.Available) < req.GPUsPerNode {
			continue
		}
		candidates = append(candidates, node)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i].Available) != len(candidates[j].Available) {
			return len(candidates[i].Available) > len(candidates[j].Available)
		}
		return candidates[i].NodeID < candidates[j].NodeID
	})

	if len(candidates) < req.NodeCount {
		return nil, fmt.Sprintf("need %d nodes with %d free gpus each, only %d qualify",
			req.NodeCount, req.GPUsPerNode, len(candidates))
	}

	assign := make(model.Assignment, req.NodeCount)
	for _, node := range candidates[:req.NodeCount] {
		assign[node.NodeID] = node.Available.Slice()[:req.GPUsPerNode]
	}
	return assign, ""
}

// placeFlat picks the single healthy node with >= gpus_needed free whose
// residual (available - gpus_needed) is smallest: best-fit, minimizing
// fragmentation. Ties broken by node id (spec.md §4.2).
func (m *Master) placeFlat(job *model.Job, now time.Time) (model.Assignment, string) {
	needed := job.Request.GPUsNeeded

	var best *model.Node
	bestResidual := -1
	var rejections []string
	for id, node := range m.nodes {
		if !node.Healthy(now) {
			rejections = append(rejections, fmt.Sprintf("%s: unhealthy", id))
			continue
		}
		if len(node.Available) < needed {
			rejections = append(rejections, fmt.Sprintf("%s: only %d free, need %d", id, len(node.Available), needed))
			continue
		}
		residual := len(node.Available) - needed
		if best == nil || residual < bestResidual || (residual == bestResidual && node.NodeID < best.NodeID) {
			best = node
			bestResidual = residual
		}
	}

	if best == nil {
		return nil, fmt.Sprintf("no healthy node with %d free gpus (%v)", needed, rejections)
	}

	gpus := best.Available.Slice()[:needed]
	return model.Assignment{best.NodeID: gpus}, ""
}
