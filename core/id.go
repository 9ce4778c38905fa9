package core

import (
	"crypto/rand"
	"encoding/hex"
)

func newID(prefix string) string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return prefix + "-unknown"
	}
	return prefix + "-" + hex.EncodeToString(buf[:])
}
