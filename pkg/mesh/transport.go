package mesh

// StartConfig describes the identity and channel secret a transport is loaded
// with. The transport speaks for exactly one node on one channel at a time.
type StartConfig struct {
	// Key is the expanded channel key.
	Key []byte
	// Channel is the channel hash derived from the channel name and key. It is
	// stamped onto every outbound packet.
	Channel uint32
	// NodeNum is the local node's numeric id.
	NodeNum uint32
	// NodeID is the canonical !hex form of NodeNum.
	NodeID    string
	LongName  string
	ShortName string
}

// Handler receives every decoded inbound packet. Implementations must not
// block; the transport's read loop calls it inline.
type Handler func(Packet)

// Transport is the single shared link to the mesh. Implementations must be
// safe for concurrent use, and Start/Stop must be idempotent-safe in the sense
// that Stop on a stopped transport is a no-op.
type Transport interface {
	// Start loads the transport with the given identity and begins receiving.
	Start(cfg StartConfig) error
	// Stop tears the link down and stops delivering packets.
	Stop() error
	// SendText broadcasts a text message on the loaded channel.
	SendText(content string, hopLimit uint32) error
	// SendNodeInfo broadcasts the loaded identity as a node announcement.
	SendNodeInfo(hopLimit uint32) error
}
