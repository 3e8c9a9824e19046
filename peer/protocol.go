package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/dlan-project/dlan-core/encoding"
)

// frameMagic identifies a valid frame header, catching a socket that
// has fallen out of sync with the protocol.
const frameMagic uint32 = 0xD1A5C0DE

// frameHeaderSize is the 9-byte header of spec.md §4.4: u32 magic,
// u32 payload_len, u8 type.
const frameHeaderSize = 9

// ErrMalformedFrame is raised by ReadFrame on a bad magic number, an
// oversized payload, or an unrecognized message type; the caller must
// close the socket (spec.md §7).
var ErrMalformedFrame = errors.New("peer: malformed frame")

// MessageType identifies the body that follows a frame header.
type MessageType uint8

const (
	MsgGetEntriesRequest MessageType = iota
	MsgGetEntriesResponse
	MsgGetHashesRequest
	MsgHashResult
	MsgGetChunkRequest
	MsgChunkStatus
	MsgChatMessages
)

// WriteFrame marshals payload and writes it to w prefixed by the
// 9-byte frame header, atop the teacher's length-prefixed WriteObject
// idiom.
func WriteFrame(w io.Writer, msgType MessageType, payload interface{}) error {
	body := encoding.Marshal(payload)

	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], frameMagic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))
	header[8] = byte(msgType)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("peer: write frame header: %w", err)
	}
	if _, err := encoding.WritePrefix(w, body); err != nil {
		return fmt.Errorf("peer: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r, validating the header against
// maxPayload, and returns its type and raw marshaled body for the
// caller to Unmarshal according to type.
func ReadFrame(r io.Reader, maxPayload uint32) (MessageType, []byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != frameMagic {
		return 0, nil, ErrMalformedFrame
	}
	payloadLen := binary.LittleEndian.Uint32(header[4:8])
	if payloadLen > maxPayload {
		return 0, nil, ErrMalformedFrame
	}
	msgType := MessageType(header[8])

	body, err := encoding.ReadPrefix(r, maxPayload)
	if err != nil {
		return 0, nil, fmt.Errorf("peer: read frame body: %w", err)
	}
	if uint32(len(body)) != payloadLen {
		return 0, nil, ErrMalformedFrame
	}
	return msgType, body, nil
}

// --- message bodies, core-to-core wire (spec.md §4.4) ---

// GetEntriesRequest asks for the children of a directory, or the
// shared-root list if SharedRootID is empty.
type GetEntriesRequest struct {
	SharedRootID string
	Path         string
}

// EntryInfo describes one child entry in a GetEntriesResponse.
type EntryInfo struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime int64 // unix seconds
}

type GetEntriesResponse struct {
	Entries []EntryInfo
}

// GetHashesRequest asks for the per-chunk digests of one file.
type GetHashesRequest struct {
	SharedRootID string
	Path         string
	NbChunks     int
}

// HashResult carries one chunk's digest, streamed one per message in
// chunk-number order to a single subscriber.
type HashResult struct {
	Num    int
	Digest chunkstore.Digest
	Status StatusCode
}

// GetChunkRequest asks for the raw bytes of one chunk from offset.
type GetChunkRequest struct {
	Digest chunkstore.Digest
	Offset int64
}

// ChunkStatus precedes the raw chunk byte stream.
type ChunkStatus struct {
	Status    StatusCode
	ChunkSize int64
}

// ChatMessages is forwarded, not interpreted, by the core (out of
// scope payload per spec.md §1).
type ChatMessages struct {
	Raw []byte
}

// StatusCode is the protocol-level status carried in responses, per
// spec.md §7's "protocol-level" error kinds.
type StatusCode uint8

const (
	StatusOK StatusCode = iota
	StatusDontHaveIt
	StatusUnknownEntry
	StatusBusy
)
