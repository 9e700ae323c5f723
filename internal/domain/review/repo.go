package review

import "context"

// SnapshotStore persists reviews. Each review has one current snapshot and
// one undo slot holding the snapshot captured immediately before a clear.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*Snapshot, int, error)
	SaveUndo(ctx context.Context, snap *Snapshot) error
	LoadUndo(ctx context.Context, id string) (*Snapshot, error)
	DeleteUndo(ctx context.Context, id string) error
}
