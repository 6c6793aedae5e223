// Package frontier computes the stability watermark of the event log.
//
// Every active node holds a hybrid logical clock, and any event it produces
// next is stamped strictly above that clock. So the smallest clock among
// active nodes, the watermark, bounds what can still appear in the log: once
// every other node's clock has reached stamp s, no event earlier than s can
// ever be written. Events below the watermark are final and can be acted on
// (compacted, acknowledged, exported) without waiting for stragglers.
package frontier

import (
	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
	"github.com/daviddao/hlcmail/pkg/order"
)

// ComputeWatermark returns the minimum active node stamp in the log's total
// order. ok is false when no node is active.
func ComputeWatermark(active []model.NodeStamp) (w model.NodeStamp, ok bool) {
	if len(active) == 0 {
		return model.NodeStamp{}, false
	}
	w = active[0]
	for _, p := range active[1:] {
		// NodeStamp order is total, so Min always succeeds.
		w, _ = order.Min(w, p)
	}
	return w, true
}

// StabilityStatus is the result of a stability check for one node's event.
type StabilityStatus struct {
	Stable    bool              `json:"stable" yaml:"stable"`
	Watermark *model.NodeStamp  `json:"watermark,omitempty" yaml:"watermark,omitempty"`
	BlockedBy []model.NodeStamp `json:"blocked_by,omitempty" yaml:"blocked_by,omitempty"`
}

// ComputeStability reports whether an event nodeID stamped at stamp is
// stable: every other active node's clock is at or past it. Nodes still
// behind are returned in BlockedBy; nodeID itself never blocks.
func ComputeStability(nodeID string, stamp hlc.Stamp, active []model.NodeStamp) StabilityStatus {
	status := StabilityStatus{Stable: true}
	if w, ok := ComputeWatermark(active); ok {
		status.Watermark = &w
	}
	for _, p := range active {
		if p.NodeID == nodeID {
			continue
		}
		if p.Stamp.Compare(stamp) == order.LessThan {
			status.Stable = false
			status.BlockedBy = append(status.BlockedBy, p)
		}
	}
	return status
}
