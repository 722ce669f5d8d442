package mesh

import (
	"errors"
	"fmt"

	"github.com/kabili207/meshtastic-go/core/crypto"
)

// ErrNoKey is returned when a profile has no shared key configured. A keyless
// profile cannot be loaded into the transport.
var ErrNoKey = errors.New("channel has no shared key")

// ChannelNum derives the numeric channel identity for a channel name and
// shared key pair. Two profiles with equal (name, key) always map to the same
// number, which is the sole grouping key for messages and nodes. Every caller
// that needs a channel number must go through this function; computing it any
// other way would silently split one logical channel in two.
func ChannelNum(name, sharedKey string) (uint32, error) {
	if sharedKey == "" {
		return 0, ErrNoKey
	}
	key, err := crypto.ParseKey(sharedKey)
	if err != nil {
		return 0, fmt.Errorf("parse channel key: %w", err)
	}
	hash, err := crypto.ChannelHash(name, key)
	if err != nil {
		return 0, fmt.Errorf("compute channel hash: %w", err)
	}
	return hash, nil
}

// ChannelKey expands the base64 shared key into the raw key bytes the
// transport is loaded with.
func ChannelKey(sharedKey string) ([]byte, error) {
	if sharedKey == "" {
		return nil, ErrNoKey
	}
	return crypto.ParseKey(sharedKey)
}
