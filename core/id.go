package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

var fallbackID atomic.Uint64

func newID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("window-%d", fallbackID.Add(1))
	}
	return hex.EncodeToString(buf[:])
}
