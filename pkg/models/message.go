package models

import "time"

// Message direction constants
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Message is a single chat message scoped to a channel number. Messages are
// append-only; nothing updates a stored message.
type Message struct {
	MessageID string `db:"message_id"`
	// PacketID is the mesh packet id, nil for locally originated echoes that
	// never got one assigned.
	PacketID      *uint32   `db:"packet_id"`
	Channel       uint32    `db:"channel"`
	SenderNum     *uint32   `db:"sender_num"`
	SenderDisplay string    `db:"sender_display"`
	Content       string    `db:"content"`
	Timestamp     time.Time `db:"timestamp"`
	Direction     string    `db:"direction"`
	HopLimit      *uint32   `db:"hop_limit"`
	HopStart      *uint32   `db:"hop_start"`
	RxSnr         *float32  `db:"rx_snr"`
	RxRssi        *int32    `db:"rx_rssi"`
}
