// Package nodeinfo turns node identity announcements into structured records.
// Announcement payloads vary across firmware versions and transports, so
// parsing is a chain of fallbacks that always produces something.
package nodeinfo

import (
	"fmt"
	"regexp"
	"strconv"

	pb "github.com/kabili207/meshtastic-go/core/proto"
	"google.golang.org/protobuf/proto"

	"github.com/firefly-mesh/firefly/pkg/models"
)

// Identity is the parsed content of a node announcement. Empty fields mean
// the announcement did not carry that information.
type Identity struct {
	NodeID    string
	LongName  string
	ShortName string
	Mac       []byte
	HwModel   string
	Role      string
	PublicKey []byte
}

// Debug-representation field patterns, for payloads that arrive as the
// protocol's textual form instead of the binary encoding.
var (
	debugIDRegex        = regexp.MustCompile(`id:\s*"([^"]*)"`)
	debugLongNameRegex  = regexp.MustCompile(`long_name:\s*"([^"]*)"`)
	debugShortNameRegex = regexp.MustCompile(`short_name:\s*"([^"]*)"`)
	debugHwModelRegex   = regexp.MustCompile(`hw_model:\s*"?([A-Za-z0-9_]+)"?`)
)

// tiers are tried strictly in order; the first success wins.
var tiers = []func(payload []byte) (*Identity, bool){
	parseUserProto,
	parseDebugText,
}

// Parse extracts a node identity from an announcement payload. It never
// fails: when no tier matches, a placeholder identity is synthesized from the
// sender's numeric id so the node is at least recorded as seen.
func Parse(payload []byte, from uint32) Identity {
	for _, tier := range tiers {
		if id, ok := tier(payload); ok {
			return *id
		}
	}
	return placeholder(from)
}

// parseUserProto handles the protocol's structured user-identity encoding.
func parseUserProto(payload []byte) (*Identity, bool) {
	var user pb.User
	if err := proto.Unmarshal(payload, &user); err != nil {
		return nil, false
	}
	if user.Id == "" && user.LongName == "" && user.ShortName == "" {
		// Technically valid protobuf, but carries nothing usable. Let the
		// next tier have a look.
		return nil, false
	}
	return &Identity{
		NodeID:    user.Id,
		LongName:  user.LongName,
		ShortName: user.ShortName,
		Mac:       user.Macaddr,
		HwModel:   HardwareModelName(int32(user.HwModel)),
		Role:      RoleName(int32(user.Role)),
		PublicKey: user.PublicKey,
	}, true
}

// parseDebugText handles payloads that arrive as the textual debug form,
// key:"value" pairs, which some firmware/transport combinations emit.
func parseDebugText(payload []byte) (*Identity, bool) {
	text := string(payload)

	id := &Identity{}
	if m := debugIDRegex.FindStringSubmatch(text); m != nil {
		id.NodeID = m[1]
	}
	if m := debugLongNameRegex.FindStringSubmatch(text); m != nil {
		id.LongName = m[1]
	}
	if m := debugShortNameRegex.FindStringSubmatch(text); m != nil {
		id.ShortName = m[1]
	}
	if m := debugHwModelRegex.FindStringSubmatch(text); m != nil {
		id.HwModel = hwModelFromToken(m[1])
	}

	if id.NodeID == "" && id.LongName == "" && id.ShortName == "" {
		return nil, false
	}
	return id, true
}

// placeholder synthesizes an identity from the sender number alone.
func placeholder(from uint32) Identity {
	nodeID := models.FormatNodeNum(from)
	short := nodeID[len(nodeID)-4:]
	return Identity{
		NodeID:    nodeID,
		LongName:  "Meshtastic " + short,
		ShortName: short,
	}
}

// HardwareModelName maps a hardware model code to its name. Codes missing
// from the table pass through as their decimal string.
func HardwareModelName(code int32) string {
	if code == 0 {
		return ""
	}
	if name, ok := pb.HardwareModel_name[code]; ok {
		return name
	}
	return strconv.FormatInt(int64(code), 10)
}

// RoleName maps a device role code to its name, passing unknown codes
// through numerically. Role 0 (CLIENT) is the firmware default and is kept.
func RoleName(code int32) string {
	if name, ok := pb.Config_DeviceConfig_Role_name[code]; ok {
		return name
	}
	return strconv.FormatInt(int64(code), 10)
}

// hwModelFromToken resolves a debug-text hw_model token, which may be either
// the enum name or a bare number.
func hwModelFromToken(token string) string {
	if code, err := strconv.ParseInt(token, 10, 32); err == nil {
		return HardwareModelName(int32(code))
	}
	return token
}

// String renders the identity for logging.
func (id Identity) String() string {
	return fmt.Sprintf("%s (%s/%s)", id.NodeID, id.LongName, id.ShortName)
}
