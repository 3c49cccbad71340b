// Package id generates job identifiers.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultPrefix is used by Generate.
const DefaultPrefix = "job"

var fallback atomic.Uint64

// Generate creates a new unique ID with the default prefix.
// Example: job-1701432000-a1b2c3d4
func Generate() string {
	return WithPrefix(DefaultPrefix)
}

// WithPrefix creates a new unique ID of the form <prefix>-<unix>-<hex>.
// Example: gif-1701432000-a1b2c3d4
func WithPrefix(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// A process-local counter keeps IDs unique without entropy
		return fmt.Sprintf("%s-%d-n%d", prefix, timestamp, fallback.Add(1))
	}
	return fmt.Sprintf("%s-%d-%s", prefix, timestamp, hex.EncodeToString(random))
}
