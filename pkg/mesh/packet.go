package mesh

import (
	pb "github.com/kabili207/meshtastic-go/core/proto"
)

// BroadcastNum is the node number used for broadcast packets.
const BroadcastNum = ^uint32(0)

// Packet is a decoded mesh packet as delivered by a transport. The Channel
// field is the channel hash carried on the wire, so a packet can always be
// attributed to its channel without consulting session state.
type Packet struct {
	From         uint32
	To           uint32
	ID           uint32
	Channel      uint32
	PortNum      pb.PortNum
	Payload      []byte
	WantResponse bool
	HopLimit     uint32
	HopStart     uint32
	RxSnr        float32
	RxRssi       int32
}
