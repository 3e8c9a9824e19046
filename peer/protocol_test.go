package peer

import (
	"bytes"
	"testing"

	"github.com/dlan-project/dlan-core/encoding"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := GetEntriesRequest{SharedRootID: "root1", Path: "music/rock"}
	require.NoError(t, WriteFrame(&buf, MsgGetEntriesRequest, req))

	msgType, body, err := ReadFrame(&buf, 1<<20)
	require.NoError(t, err)
	require.Equal(t, MsgGetEntriesRequest, msgType)

	var got GetEntriesRequest
	require.NoError(t, encoding.Unmarshal(body, &got))
	require.Equal(t, req, got)
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0})
	_, _, err := ReadFrame(buf, 1<<20)
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, MsgChatMessages, ChatMessages{Raw: make([]byte, 1024)}))

	_, _, err := ReadFrame(&buf, 10)
	require.ErrorIs(t, err, ErrMalformedFrame)
}
