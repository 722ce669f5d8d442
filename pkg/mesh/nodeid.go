package mesh

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseNodeID parses a !hex node id into its numeric form.
func ParseNodeID(id string) (uint32, error) {
	s := strings.TrimPrefix(id, "!")
	if s == "" {
		return 0, fmt.Errorf("empty node id")
	}
	num, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse node id %q: %w", id, err)
	}
	return uint32(num), nil
}
