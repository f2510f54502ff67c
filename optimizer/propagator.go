package optimizer

import (
	"github.com/emirpasic/gods/queues/priorityqueue"

	"go.viam.com/posegraph/graph"
)

type frontierEntry struct {
	id   int
	cost float64
	via  graph.Edge
}

func byCost(a, b interface{}) int {
	ca, cb := a.(frontierEntry).cost, b.(frontierEntry).cost
	switch {
	case ca < cb:
		return -1
	case ca > cb:
		return 1
	default:
		return 0
	}
}

// ComputeInitialGuess seeds the estimates of the active vertices by walking the cheapest
// initialization paths from the fixed vertices, or from the lowest id active vertex when none is
// fixed. Only active edges implementing graph.InitialEstimator are followed. Vertices that cannot
// be reached keep their estimates.
func (o *Optimizer) ComputeInitialGuess() error {
	if o.asm == nil {
		return ErrNotInitialized
	}
	active := make(map[graph.Edge]bool, len(o.activeEdges))
	for _, e := range o.activeEdges {
		active[e] = true
	}
	isActive := make(map[int]bool, len(o.activeVertices))
	for _, v := range o.activeVertices {
		isActive[v.ID()] = true
	}

	settled := map[int]bool{}
	best := map[int]float64{}
	queue := priorityqueue.NewWith(byCost)
	for _, v := range o.activeVertices {
		if v.Fixed() {
			queue.Enqueue(frontierEntry{id: v.ID()})
			best[v.ID()] = 0
		}
	}
	if queue.Empty() {
		root := o.activeVertices[0].ID()
		queue.Enqueue(frontierEntry{id: root})
		best[root] = 0
	}

	for !queue.Empty() {
		item, _ := queue.Dequeue()
		cur := item.(frontierEntry)
		if settled[cur.id] || cur.cost > best[cur.id] {
			continue
		}
		if cur.via != nil {
			cur.via.(graph.InitialEstimator).InitialEstimate(o.g.Resolve(cur.via), settled, cur.id)
		}
		settled[cur.id] = true

		for _, e := range o.g.EdgesOf(cur.id) {
			init, ok := e.(graph.InitialEstimator)
			if !ok || !active[e] {
				continue
			}
			for _, to := range e.Vertices() {
				if settled[to] || !isActive[to] || o.g.Vertex(to).Fixed() {
					continue
				}
				edgeCost := init.InitialEstimatePossible(settled, to)
				if edgeCost < 0 {
					continue
				}
				cost := cur.cost + edgeCost
				if prev, seen := best[to]; seen && prev <= cost {
					continue
				}
				best[to] = cost
				queue.Enqueue(frontierEntry{id: to, cost: cost, via: e})
			}
		}
	}

	if unreached := len(o.activeVertices) - len(settled); unreached > 0 {
		o.logger.Debugw("initial guess left vertices untouched", "unreached", unreached)
	}
	return nil
}
