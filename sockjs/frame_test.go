package sockjs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_Encode(t *testing.T) {
	assert.Equal(t, "o", DefaultCodec.Encode(Frame{Kind: FrameOpen}))
	assert.Equal(t, "h", DefaultCodec.Encode(Frame{Kind: FrameHeartbeat}))
	assert.Equal(t, `a["hello","world"]`, DefaultCodec.Encode(MessageFrame("hello", "world")))
	assert.Equal(t, `c[3000,"Go away!"]`, DefaultCodec.Encode(CloseFrame(3000, "Go away!")))
}

func TestCodec_RoundTrip(t *testing.T) {
	frames := []Frame{
		{Kind: FrameOpen},
		{Kind: FrameHeartbeat},
		MessageFrame("one"),
		MessageFrame("hello", "world"),
		MessageFrame(`with "quotes" and \backslashes\`),
		MessageFrame("unicode ☃ snowman"),
		CloseFrame(3000, "Go away!"),
		CloseFrame(2010, "Another connection still open"),
	}
	for _, in := range frames {
		out, err := DefaultCodec.Decode([]byte(DefaultCodec.Encode(in)))
		require.NoError(t, err)
		assert.Equal(t, in.Kind, out.Kind)
		assert.Equal(t, in.Messages, out.Messages)
		assert.Equal(t, in.Status, out.Status)
		assert.Equal(t, in.Reason, out.Reason)
	}
}

func TestCodec_DecodeMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"a",
		"a[",
		`a["unterminated`,
		`a{"not":"array"}`,
		"c",
		"c[",
		"c[3000]",
		`c["notanumber","reason"]`,
		`c[3000,42]`,
	} {
		frame, err := DefaultCodec.Decode([]byte(data))
		require.Errorf(t, err, "expected decode error for %q", data)
		var decodeErr *DecodeError
		assert.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, FrameUnknown, frame.Kind)
	}
}

func TestCodec_DecodeUnknownKind(t *testing.T) {
	// unmapped prefixes decode to the unknown variant without error so
	// newer frame kinds degrade gracefully
	frame, err := DefaultCodec.Decode([]byte("z[1,2,3]"))
	require.NoError(t, err)
	assert.Equal(t, FrameUnknown, frame.Kind)
	assert.Equal(t, "z[1,2,3]", frame.Raw)
}
