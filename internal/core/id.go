package core

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const localIDPrefix = "loc"

var ErrInvalidLocalID = errors.New("invalid local id")

// NewLocalID generates a locally-unique record identifier: a base36
// millisecond timestamp plus a random hex suffix. Collisions are
// negligible for on-device use; this is not a cryptographic guarantee.
func NewLocalID() string {
	var suffix [4]byte
	_, _ = rand.Read(suffix[:])

	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return localIDPrefix + "_" + ts + "_" + hex.EncodeToString(suffix[:])
}

// ValidateLocalID checks that an identifier has the on-device format.
// Server-assigned identifiers never pass this check.
func ValidateLocalID(id string) error {
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != localIDPrefix {
		return ErrInvalidLocalID
	}
	if _, err := strconv.ParseInt(parts[1], 36, 64); err != nil {
		return ErrInvalidLocalID
	}
	if _, err := hex.DecodeString(parts[2]); err != nil || parts[2] == "" {
		return ErrInvalidLocalID
	}
	return nil
}
