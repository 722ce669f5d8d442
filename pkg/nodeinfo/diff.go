package nodeinfo

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/firefly-mesh/firefly/pkg/models"
)

// EventKind classifies what an announcement did to the node table. It decides
// which notification goes out; storage happens regardless.
type EventKind string

const (
	EventNew     EventKind = "node_new"
	EventUpdated EventKind = "node_updated"
	EventSeen    EventKind = "node_seen"
)

// FieldChange records one observed field transition.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

func (fc FieldChange) String() string {
	return fmt.Sprintf("%s: %s -> %s", fc.Field, fc.Old, fc.New)
}

// Diff compares a freshly parsed identity against the stored node, if any.
// Only fields the announcement actually carries count as changes; an empty
// field never overwrites a known value (the store merges the same way).
func Diff(prev *models.Node, id Identity) (EventKind, []FieldChange) {
	if prev == nil {
		return EventNew, nil
	}

	var changes []FieldChange
	compare := func(field, oldVal, newVal string) {
		if newVal != "" && newVal != oldVal {
			changes = append(changes, FieldChange{Field: field, Old: oldVal, New: newVal})
		}
	}

	compare("node_id", prev.NodeID, id.NodeID)
	compare("long_name", prev.LongName, id.LongName)
	compare("short_name", prev.ShortName, id.ShortName)
	compare("hw_model", prev.HwModel, id.HwModel)
	compare("role", prev.Role, id.Role)
	if len(id.Mac) > 0 && !bytes.Equal(prev.Mac, id.Mac) {
		changes = append(changes, FieldChange{
			Field: "macaddr",
			Old:   hex.EncodeToString(prev.Mac),
			New:   hex.EncodeToString(id.Mac),
		})
	}
	if len(id.PublicKey) > 0 && !bytes.Equal(prev.PublicKey, id.PublicKey) {
		changes = append(changes, FieldChange{
			Field: "public_key",
			Old:   hex.EncodeToString(prev.PublicKey),
			New:   hex.EncodeToString(id.PublicKey),
		})
	}

	if len(changes) == 0 {
		return EventSeen, nil
	}
	return EventUpdated, changes
}
