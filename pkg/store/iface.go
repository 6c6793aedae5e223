package store

import (
	"context"
	"time"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
	"github.com/daviddao/hlcmail/pkg/physical"
)

// StoreInterface is the set of store operations the CLI and the HTTP
// service depend on. *Store implements it; tests may substitute a fake.
type StoreInterface interface {
	Close() error

	// Nodes
	RegisterNode(ctx context.Context, id string) (*model.Node, error)
	GetNode(ctx context.Context, id string) (*model.Node, error)
	LoadClock(ctx context.Context, id string, src physical.Source) (hlc.Clock, error)
	UpdateNodeStamp(ctx context.Context, id string, stamp hlc.Stamp) error
	TransitionClock(ctx context.Context, id string, src physical.Source, next func(hlc.Clock) hlc.Clock) (hlc.Clock, error)
	ListNodes(ctx context.Context) ([]model.Node, error)
	GetActiveStamps(ctx context.Context, window time.Duration) ([]model.NodeStamp, error)

	// Cursors
	GetCursor(ctx context.Context, nodeID string) int64
	SetCursor(ctx context.Context, nodeID string, sinceID int64) error

	// Events
	InsertEvent(ctx context.Context, e *model.Event) (int64, error)
	ListEvents(ctx context.Context, since hlc.Stamp, limit int) ([]model.Event, error)
	ListEventsSinceID(ctx context.Context, sinceID int64, limit int) ([]model.Event, error)
	MaxEventID(ctx context.Context) int64
	CountEvents(ctx context.Context) int64
	ListEventsForNode(ctx context.Context, nodeID string, sinceID int64, limit int) ([]model.Event, error)
}

var _ StoreInterface = (*Store)(nil)
