// Package store persists a team as a single durable JSON artifact.
// Saves are atomic with respect to concurrent readers: the artifact is
// written to a temporary file and renamed into place, so a reader never
// observes a partial write and a failed save never corrupts the
// previous artifact.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: artifact not found")
var ErrParse = errors.New("store: artifact not well-formed")
var ErrWrite = errors.New("store: write failed")

// Revision identifies the on-disk state of an artifact at a point in
// time. The coordinator captures it at load and compares it before
// commit to detect writers that slipped in between.
type Revision struct {
	Digest  string
	ModTime time.Time
	Size    int64
}

// Zero reports whether the revision refers to a missing artifact.
func (r Revision) Zero() bool { return r.Digest == "" }

// Equal compares revisions by content digest alone; mod times are
// advisory and differ across filesystems.
func (r Revision) Equal(o Revision) bool { return r.Digest == o.Digest }

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
