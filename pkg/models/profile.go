package models

import "time"

const (
	// HopLimitDefault is used when a profile has no valid hop limit configured.
	HopLimitDefault = 3
	// HopLimitMax is the largest hop limit the mesh firmware accepts.
	HopLimitMax = 7
)

// Profile is a named identity plus channel/key pair a user operates as.
// Several profiles may point at the same (channel, key) pair; they are then
// different views onto the same channel.
type Profile struct {
	ID        string    `db:"id"`
	NodeID    string    `db:"node_id"`
	LongName  string    `db:"long_name"`
	ShortName string    `db:"short_name"`
	Channel   string    `db:"channel"`
	Key       string    `db:"key"`
	HopLimit  uint32    `db:"hop_limit"`
	Created   time.Time `db:"created_at"`
	Updated   time.Time `db:"updated_at"`
}

// EffectiveHopLimit clamps the configured hop limit into the valid 0-7 range,
// falling back to the default for out-of-range values.
func (p *Profile) EffectiveHopLimit() uint32 {
	if p.HopLimit > HopLimitMax {
		return HopLimitDefault
	}
	return p.HopLimit
}
