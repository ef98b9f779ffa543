package nem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_EncodeDecode(t *testing.T) {
	f := newFrame(cmdSend, map[string]string{
		"destination": "/w/api/account/subscribe",
	}, []byte(`{"account":"TABC"}`))

	decoded, err := decodeFrame(f.encode())
	require.NoError(t, err)
	assert.Equal(t, cmdSend, decoded.Command)
	assert.Equal(t, "/w/api/account/subscribe", decoded.Headers["destination"])
	assert.Equal(t, "18", decoded.Headers["content-length"])
	assert.Equal(t, `{"account":"TABC"}`, string(decoded.Body))
}

func TestFrame_HeaderEscaping(t *testing.T) {
	f := newFrame(cmdError, map[string]string{"message": "bad: thing\nhappened"}, nil)
	decoded, err := decodeFrame(f.encode())
	require.NoError(t, err)
	assert.Equal(t, "bad: thing\nhappened", decoded.Headers["message"])
}

func TestDecodeFrame_Errors(t *testing.T) {
	_, err := decodeFrame("\x00")
	assert.Error(t, err)

	_, err = decodeFrame("MESSAGE\nnocolon\n\nbody\x00")
	assert.Error(t, err)
}

func TestSockJS_RoundTrip(t *testing.T) {
	sub := newFrame(cmdSubscribe, map[string]string{"id": "sub-1", "destination": TopicNewBlocks}, nil)
	payload, err := sockjsEncode(sub)
	require.NoError(t, err)
	assert.Equal(t, byte('['), payload[0])

	// A server echoes frames back prefixed with 'a'
	msg, err := sockjsDecode(append([]byte("a"), payload...))
	require.NoError(t, err)
	require.Len(t, msg.Frames, 1)
	assert.Equal(t, cmdSubscribe, msg.Frames[0].Command)
	assert.Equal(t, TopicNewBlocks, msg.Frames[0].Headers["destination"])
}

func TestSockJS_ControlFrames(t *testing.T) {
	msg, err := sockjsDecode([]byte("o"))
	require.NoError(t, err)
	assert.Equal(t, byte(sockOpen), msg.Kind)

	msg, err = sockjsDecode([]byte("h"))
	require.NoError(t, err)
	assert.Equal(t, byte(sockHeartbeat), msg.Kind)

	msg, err = sockjsDecode([]byte(`c[3000,"Go away!"]`))
	require.NoError(t, err)
	assert.Equal(t, 3000, msg.CloseCode)
	assert.Equal(t, "Go away!", msg.CloseReason)

	_, err = sockjsDecode([]byte("x"))
	assert.Error(t, err)
	_, err = sockjsDecode(nil)
	assert.Error(t, err)
}
