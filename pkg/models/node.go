package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Node is a mesh participant discovered through its identity announcements.
// Nodes are keyed by (channel, node_num) so every profile sharing a channel
// sees the same node table.
type Node struct {
	Channel     uint32    `db:"channel"`
	NodeNum     uint32    `db:"node_num"`
	NodeID      string    `db:"node_id"`
	LongName    string    `db:"long_name"`
	ShortName   string    `db:"short_name"`
	Mac         []byte    `db:"macaddr"`
	HwModel     string    `db:"hw_model"`
	Role        string    `db:"role"`
	PublicKey   []byte    `db:"public_key"`
	FirstSeen   time.Time `db:"first_seen"`
	LastSeen    time.Time `db:"last_seen"`
	PacketCount int       `db:"packet_count"`
}

// FormatNodeNum renders a numeric node id in the canonical !hex form.
func FormatNodeNum(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}

// SafeNodeID returns a well-formed node id for display. Some firmwares report
// the id as a bare decimal number; those are repaired into the !hex form, and
// a missing id is synthesized from the node number.
func (n *Node) SafeNodeID() string {
	if n.NodeID == "" {
		return FormatNodeNum(n.NodeNum)
	}
	if !strings.HasPrefix(n.NodeID, "!") {
		if dec, err := strconv.ParseUint(n.NodeID, 10, 32); err == nil {
			return FormatNodeNum(uint32(dec))
		}
	}
	return n.NodeID
}

// DisplayName returns the best human-readable name for the node.
func (n *Node) DisplayName() string {
	if n.LongName != "" {
		return n.LongName
	}
	if n.ShortName != "" {
		return n.ShortName
	}
	return n.SafeNodeID()
}

// MacString formats the MAC address as colon-separated hex, or "" when unknown.
func (n *Node) MacString() string {
	if len(n.Mac) == 0 {
		return ""
	}
	parts := make([]string, len(n.Mac))
	for i, b := range n.Mac {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}
