// Package model defines the core domain types for hlcmail.
//
// Hlcmail coordinates processes on one host (agent sessions, workers, shells)
// through a shared event log ordered by hybrid logical clocks
// (Kulkarni et al., 2014):
//
//   - Every node keeps an HLC. Local events tick it; every message carries
//     the sender's stamp and the receiver merges it, so a message is always
//     ordered after the event that sent it.
//
//   - Stamps stay close to wall-clock time, so the log reads chronologically
//     and "everything before 10:42" has a meaning. Ties between nodes are
//     broken by node ID, giving a total order with no coordinator.
//
//   - The stability watermark is the smallest clock among active nodes.
//     Nothing at or below it can still be produced by anyone.
package model

import (
	"time"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/order"
)

// EventKind enumerates the types of events in the append-only log.
type EventKind string

const (
	EventMsg  EventKind = "msg"
	EventTick EventKind = "tick"
)

// Node represents a registered participant and its last persisted clock.
type Node struct {
	ID         string    `json:"id" yaml:"id"`
	Stamp      hlc.Stamp `json:"stamp" yaml:"stamp"`
	Registered time.Time `json:"registered_at" yaml:"registered_at"`
	LastSeen   time.Time `json:"last_seen_at" yaml:"last_seen_at"`
}

// Event is a single entry in the append-only event log.
type Event struct {
	ID        int64     `json:"id" yaml:"id"`
	MsgID     string    `json:"msg_id,omitempty" yaml:"msg_id,omitempty"`
	NodeID    string    `json:"node_id" yaml:"node_id"`
	Stamp     hlc.Stamp `json:"stamp" yaml:"stamp"`
	Kind      EventKind `json:"kind" yaml:"kind"`
	Target    string    `json:"target,omitempty" yaml:"target,omitempty"`
	Body      string    `json:"body,omitempty" yaml:"body,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Before reports whether e precedes other in the log's total order.
func (e Event) Before(other Event) bool {
	return hlc.TotalOrderLess(e.Stamp, e.NodeID, other.Stamp, other.NodeID)
}

// NodeStamp is a node's current position in time.
type NodeStamp struct {
	NodeID string    `json:"node_id" yaml:"node_id"`
	Stamp  hlc.Stamp `json:"stamp" yaml:"stamp"`
}

var _ order.PartiallyComparable[NodeStamp] = NodeStamp{}

// Compare totally orders node stamps: by stamp, then by node ID.
func (p NodeStamp) Compare(other NodeStamp) order.PartialOrdering {
	switch {
	case hlc.TotalOrderLess(p.Stamp, p.NodeID, other.Stamp, other.NodeID):
		return order.LessThan
	case hlc.TotalOrderLess(other.Stamp, other.NodeID, p.Stamp, p.NodeID):
		return order.GreaterThan
	default:
		return order.Equal
	}
}
