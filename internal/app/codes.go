package app

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"
)

// codeAllocator produces 6-digit numeric join codes. Collision handling
// is the caller's job (create-if-absent against the store); the secure
// path only exists to escape a badly seeded or unlucky PRNG streak, not
// for secrecy, since codes are short-lived and human-typed.
type codeAllocator struct {
	mu  sync.Mutex
	rnd *mrand.Rand
}

func newCodeAllocator() *codeAllocator {
	return &codeAllocator{rnd: mrand.New(mrand.NewSource(time.Now().UnixNano()))}
}

func (a *codeAllocator) next(secure bool) (string, error) {
	if secure {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("join code entropy: %w", err)
		}
		return fmt.Sprintf("%06d", binary.BigEndian.Uint32(buf[:])%1000000), nil
	}
	a.mu.Lock()
	n := a.rnd.Intn(1000000)
	a.mu.Unlock()
	return fmt.Sprintf("%06d", n), nil
}
