// README: Common identifier and geo primitives shared across modules.
package types

import (
	"crypto/rand"
	"encoding/hex"
)

type ID string

// NewID returns a 32-hex random identifier.
func NewID() ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return ID(hex.EncodeToString(b[:]))
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
