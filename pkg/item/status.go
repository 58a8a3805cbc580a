package item

// Status is the outcome of an item-layer operation. Idiomatic Go would
// normally return an error here, but the operations this package models
// (alloc/set/cas/annex/update/delete) report one of a small closed set of
// outcomes that callers branch on by kind, not by message, so a status enum
// reads more honestly than a sentinel-error forest.
type Status uint8

const (
	// OK means the operation completed as described.
	OK Status = iota
	// NotFound means the key has no linked, unexpired item.
	NotFound
	// Oversized means the requested size does not fit any slab class.
	Oversized
	// NoMem means a class fit but no chunk could be produced for it (free
	// list empty, growth budget exhausted, and either eviction is disabled
	// or found nothing to reclaim).
	NoMem
	// CompareFail means a CAS token did not match the item currently linked
	// under the key.
	CompareFail
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NotFound:
		return "NOT_FOUND"
	case Oversized:
		return "OVERSIZED"
	case NoMem:
		return "NOMEM"
	case CompareFail:
		return "EOTHER"
	default:
		return "UNKNOWN"
	}
}

// VType classifies an item's payload, reclassified after every write to the
// value region (set, cas, annex, update — including prepend).
type VType uint8

const (
	// VTypeSTR is the default classification for any payload that is not a
	// clean base-10 unsigned integer literal.
	VTypeSTR VType = iota
	// VTypeINT marks a payload that parses entirely as digits 0-9.
	VTypeINT
)

func (v VType) String() string {
	if v == VTypeINT {
		return "INT"
	}
	return "STR"
}
