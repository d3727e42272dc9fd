package socketio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame_SinglePacket(t *testing.T) {
	b, err := EncodeFrame(NewMessagePacket([]byte("5")))
	require.NoError(t, err)
	assert.Equal(t, "3:::5", string(b))
}

func TestEncodeFrame_MultiplePackets(t *testing.T) {
	b, err := EncodeFrame(NewMessagePacket([]byte("5")), NewMessagePacket([]byte("53d")))
	require.NoError(t, err)
	assert.Equal(t, "\uFFFD5\uFFFD3:::5\uFFFD7\uFFFD3:::53d", string(b))
}

func TestEncodeFrame_CountsCharacters(t *testing.T) {
	b, err := EncodeFrame(NewMessagePacket([]byte("héllo")), NewPacket(PacketNoop))
	require.NoError(t, err)
	// "3:::héllo" is 10 bytes but 9 characters
	assert.Equal(t, "\uFFFD9\uFFFD3:::héllo\uFFFD3\uFFFD8::", string(b))
}

func TestEncodeFrame_UnknownType(t *testing.T) {
	_, err := EncodeFrame(NewPacket(PacketAck), NullPacket)
	assert.ErrorIs(t, err, ErrUnknownPacketType)
}

func TestDecodeFrame_Unframed(t *testing.T) {
	packets, err := DecodeFrame([]byte("3:::woot"))
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, "woot", string(packets[0].Data))
	assert.Equal(t, 0, packets[0].SequenceNumber)
}

func TestDecodeFrame_Framed(t *testing.T) {
	packets, err := DecodeFrame([]byte("\uFFFD5\uFFFD3:::5\uFFFD7\uFFFD3:::53d\uFFFD3\uFFFD2::"))
	require.NoError(t, err)
	require.Len(t, packets, 3)
	assert.Equal(t, "5", string(packets[0].Data))
	assert.Equal(t, "53d", string(packets[1].Data))
	assert.Equal(t, PacketHeartbeat, packets[2].Type())
	for i, p := range packets {
		assert.Equal(t, i, p.SequenceNumber)
	}
}

func TestDecodeFrame_MultiByteCharacters(t *testing.T) {
	in := []byte("\uFFFD7\uFFFD3:::ü€😀\uFFFD3\uFFFD2::")
	packets, err := DecodeFrame(in)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Equal(t, "ü€😀", string(packets[0].Data))
	assert.Equal(t, PacketHeartbeat, packets[1].Type())
}

func TestFrameRoundTrip(t *testing.T) {
	sent := []*Packet{
		NewMessagePacket([]byte("привет")),
		NewPacket(PacketHeartbeat),
		{typ: PacketJSON, Data: []byte("{\"k\":\"\uFFFD\"}")},
	}
	b, err := EncodeFrame(sent...)
	require.NoError(t, err)
	received, err := DecodeFrame(b)
	require.NoError(t, err)
	require.Len(t, received, len(sent))
	for i := range sent {
		assert.Equal(t, sent[i].Type(), received[i].Type())
		assert.Equal(t, sent[i].Data, received[i].Data)
	}
}

func TestDecodeFrame_SkipsNullPackets(t *testing.T) {
	packets, err := DecodeFrame([]byte("\uFFFD4\uFFFDjunk\uFFFD3\uFFFD2::"))
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, PacketHeartbeat, packets[0].Type())
	assert.Equal(t, 0, packets[0].SequenceNumber)

	packets, err = DecodeFrame([]byte("\uFFFD4\uFFFDjunk\uFFFD5\uFFFD3:::a\uFFFD4\uFFFDmore\uFFFD5\uFFFD3:::b"))
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Equal(t, 0, packets[0].SequenceNumber)
	assert.Equal(t, 1, packets[1].SequenceNumber)
}

func TestDecodeFrame_Malformed(t *testing.T) {
	for _, in := range []string{
		"\uFFFD5",
		"\uFFFDx\uFFFD3:::5",
		"\uFFFD-1\uFFFD3:::5",
		"\uFFFD50\uFFFD3:::5",
	} {
		_, err := DecodeFrame([]byte(in))
		assert.ErrorIs(t, err, ErrMalformedFrame, in)
	}
}

func TestDecodeFrame_Empty(t *testing.T) {
	packets, err := DecodeFrame(nil)
	require.NoError(t, err)
	assert.Empty(t, packets)
}

func TestCharCount(t *testing.T) {
	assert.Equal(t, 0, charCount(nil))
	assert.Equal(t, 5, charCount([]byte("hello")))
	assert.Equal(t, 4, charCount([]byte("ü€😀a")))
	// stray continuation byte
	assert.Equal(t, 2, charCount([]byte{0x80, 'a'}))
}
