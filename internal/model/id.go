package model

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// ID is the 64-bit identifier every stored entity is keyed by. It is
// also dimension 0 of each entity's index in the storage engine.
type ID uint64

// String formats the id as a decimal, matching how ids appear in URLs
// and the {account}:{token} auth header.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a decimal entity id.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return ID(v), err
}

// hashID derives an ID from the first 8 bytes of a BLAKE3 digest over
// the given parts.
func hashID(parts ...[]byte) ID {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return ID(binary.BigEndian.Uint64(sum[:8]))
}

// EmailID deterministically derives an account id from an email
// address. Verified and unverified records for the same address share
// this id, so a repeated send-captcha call finds the pending record and
// registration knows which account id it will materialize.
func EmailID(email string) ID {
	return hashID([]byte(strings.ToLower(strings.TrimSpace(email))))
}

// randomID derives an id from the current time, the given parts and a
// random nonce. Ids built this way are unpredictable even when the
// inputs repeat; this is an anti-enumeration property, not
// content-addressed deduplication.
func randomID(parts ...[]byte) ID {
	var nonce [8]byte
	rand.Read(nonce[:])

	all := make([][]byte, 0, len(parts)+2)
	all = append(all, binary.BigEndian.AppendUint64(nil, uint64(time.Now().UnixNano())))
	all = append(all, parts...)
	all = append(all, nonce[:])
	return hashID(all...)
}

func idBytes(id ID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}
