package document

import "github.com/sst/mentions/internal/pubsub"

// NodeID identifies a node in the surface's registry. IDs are never reused.
type NodeID string

type NodeKind int

const (
	// Temporary nodes decorate a rune range while a trigger is being
	// composed. The runes underneath stay plain, editable text.
	Temporary NodeKind = iota
	// Permanent nodes occupy a single cell and are bound to an entity.
	Permanent
)

func (k NodeKind) String() string {
	switch k {
	case Temporary:
		return "temporary"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ObjectReplacement stands in for a permanent node whenever the document is
// read as plain runes.
const ObjectReplacement = '\uFFFC'

const (
	EventNodeCreated   pubsub.EventType = "node_created"
	EventNodeDestroyed pubsub.EventType = "node_destroyed"
)

// Node is a registry entry. For temporary nodes Start and End bound the
// decorated rune range. For permanent nodes they are filled in by Tokens and
// Node with the cell the node currently occupies.
type Node struct {
	ID      NodeID
	Kind    NodeKind
	Start   int
	End     int
	Trigger rune
	// TokenKind is the trigger kind the node was created for, e.g. "topic".
	TokenKind string
	Ref       string
	Label     string
}

// Display is the text shown for the node in the editor.
func (n Node) Display() string {
	if n.Kind != Permanent {
		return ""
	}
	return string(n.Trigger) + n.Label
}

// NodeEvent is published on every node creation and destruction.
// Remaining counts the events still to follow from the same mutation, so
// consumers that check global invariants can wait for a quiescent document.
type NodeEvent struct {
	Node      Node
	Remaining int
}

// TokenSpec describes a permanent node to insert.
type TokenSpec struct {
	Trigger   rune
	TokenKind string
	Ref       string
	Label     string
}
