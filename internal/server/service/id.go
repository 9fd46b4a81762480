package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// idBytes is the amount of randomness in a file id (128 bits).
const idBytes = 16

// NewID returns a 32-character lowercase hex file id. It is safe to use
// unescaped in file paths and URL path segments.
func NewID() string {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failure: %v", err))
	}
	return hex.EncodeToString(b)
}

// CheckEntropy verifies that the system random source is usable. It is
// called once at startup so that a broken source fails fast.
func CheckEntropy() error {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("crypto/rand unavailable: %w", err)
	}
	return nil
}
