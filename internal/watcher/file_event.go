package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a change event
type Kind int

const (
	// KindOther covers removals, renames and metadata-only changes
	KindOther Kind = iota
	// KindCreated is a newly created file or directory
	KindCreated
	// KindModified is a write to an existing file
	KindModified
)

// String returns the kind name used in log lines
func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	default:
		return "other"
	}
}

// ChangeEvent represents a file system change delivered to the consumer.
// Paths are processed in order.
type ChangeEvent struct {
	Kind      Kind
	Paths     []string
	Op        fsnotify.Op
	Timestamp time.Time
}

// kindOf maps an fsnotify operation to a change kind. Create wins over Write
// when both bits are set.
func kindOf(op fsnotify.Op) Kind {
	switch {
	case op.Has(fsnotify.Create):
		return KindCreated
	case op.Has(fsnotify.Write):
		return KindModified
	default:
		return KindOther
	}
}
