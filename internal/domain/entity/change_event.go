package entity

// OpKind classifies a committed store write.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
)

// ChangeEvent describes one committed write. Seq is assigned by the change
// feed at append time and increases monotonically in commit order. Snapshot
// carries the record as committed; observers are only ever sent the
// identifying fields, never the snapshot.
type ChangeEvent struct {
	Seq        int64  `json:"seq"`
	Collection string `json:"collection"`
	ID         int64  `json:"id"`
	Op         OpKind `json:"op"`
	Snapshot   Record `json:"-"`
}
