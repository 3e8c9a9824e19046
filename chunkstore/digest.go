package chunkstore

import (
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Digest is a chunk's content address: a blake2b-256 hash of its bytes.
type Digest [32]byte

// ZeroDigest is the digest of a chunk that has not yet been hashed.
var ZeroDigest Digest

// HashBytes returns the Digest of b.
func HashBytes(b []byte) Digest {
	return Digest(blake2b.Sum256(b))
}

// String returns the hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalJSON encodes d as a hex string.
func (d Digest) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a hex string into d.
func (d *Digest) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("chunkstore: invalid digest JSON %q", b)
	}
	decoded, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return fmt.Errorf("chunkstore: invalid digest hex: %w", err)
	}
	if len(decoded) != len(d) {
		return fmt.Errorf("chunkstore: expected %d bytes, got %d", len(d), len(decoded))
	}
	copy(d[:], decoded)
	return nil
}

// MarshalDLAN writes d's raw bytes to w, letting the wire encoder skip the
// generic reflection-based byte-array path for digests.
func (d Digest) MarshalDLAN(w io.Writer) error {
	_, err := w.Write(d[:])
	return err
}

// UnmarshalDLAN reads d's raw bytes from r.
func (d *Digest) UnmarshalDLAN(r io.Reader) error {
	_, err := io.ReadFull(r, d[:])
	return err
}

// NewIncrementalHasher returns a running blake2b-256 hash.Hash suitable
// for incremental (chunk-at-a-time) digesting — distinct from the
// background Hasher worker below, which owns the hashing queue for the
// whole mirror.
func NewIncrementalHasher() (hasherState, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return hasherState{}, err
	}
	return hasherState{h}, nil
}

type hasherState struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
		Reset()
	}
}

func (hs hasherState) Write(p []byte) (int, error) { return hs.h.Write(p) }

func (hs hasherState) Sum() Digest {
	var d Digest
	copy(d[:], hs.h.Sum(nil))
	return d
}
