package sockjs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FrameKind enumerates the wire frame variants.
type FrameKind int

const (
	FrameOpen FrameKind = iota
	FrameHeartbeat
	FrameMessage
	FrameClose
	// FrameUnknown is returned for bytes with an unmapped prefix, so
	// newer peers can introduce frame kinds gracefully.
	FrameUnknown
)

func (k FrameKind) String() string {
	switch k {
	case FrameOpen:
		return "open"
	case FrameHeartbeat:
		return "heartbeat"
	case FrameMessage:
		return "message"
	case FrameClose:
		return "close"
	}
	return "unknown"
}

// Frame is one unit of the wire protocol. Messages is set for
// FrameMessage, Status/Reason for FrameClose, Raw for FrameUnknown.
type Frame struct {
	Kind     FrameKind
	Messages []string
	Status   int
	Reason   string
	Raw      string
}

// MessageFrame builds a FrameMessage value.
func MessageFrame(messages ...string) Frame {
	return Frame{Kind: FrameMessage, Messages: messages}
}

// CloseFrame builds a FrameClose value.
func CloseFrame(status int, reason string) Frame {
	return Frame{Kind: FrameClose, Status: status, Reason: reason}
}

// DecodeError denotes malformed frame bytes: a known frame prefix whose
// payload did not parse. It is a protocol error, the frame carries no
// meaning and must not reach the session.
type DecodeError struct {
	Data string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sockjs: malformed frame %q: %v", e.Data, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errEmptyFrame = fmt.Errorf("empty frame")

// Codec translates between Frame values and wire bytes. It is pure and
// stateless; sessions hold a Codec so framing can evolve without
// touching session logic.
type Codec interface {
	Encode(f Frame) string
	Decode(data []byte) (Frame, error)
}

// DefaultCodec implements the standard framing: "o", "h",
// a<json-array-of-strings> and c[<code>,"<reason>"].
var DefaultCodec Codec = stdCodec{}

type stdCodec struct{}

func (stdCodec) Encode(f Frame) string {
	switch f.Kind {
	case FrameOpen:
		return "o"
	case FrameHeartbeat:
		return "h"
	case FrameMessage:
		return "a[" + strings.Join(transform(f.Messages, quote), ",") + "]"
	case FrameClose:
		return closeFrame(f.Status, f.Reason)
	}
	return f.Raw
}

func (stdCodec) Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{Kind: FrameUnknown}, &DecodeError{Err: errEmptyFrame}
	}
	switch data[0] {
	case 'o':
		return Frame{Kind: FrameOpen}, nil
	case 'h':
		return Frame{Kind: FrameHeartbeat}, nil
	case 'a':
		var messages []string
		if err := json.Unmarshal(data[1:], &messages); err != nil {
			return Frame{Kind: FrameUnknown}, &DecodeError{Data: string(data), Err: err}
		}
		return Frame{Kind: FrameMessage, Messages: messages}, nil
	case 'c':
		var parts []json.RawMessage
		if err := json.Unmarshal(data[1:], &parts); err != nil || len(parts) != 2 {
			return Frame{Kind: FrameUnknown}, &DecodeError{Data: string(data), Err: err}
		}
		var f Frame
		f.Kind = FrameClose
		if err := json.Unmarshal(parts[0], &f.Status); err != nil {
			return Frame{Kind: FrameUnknown}, &DecodeError{Data: string(data), Err: err}
		}
		if err := json.Unmarshal(parts[1], &f.Reason); err != nil {
			return Frame{Kind: FrameUnknown}, &DecodeError{Data: string(data), Err: err}
		}
		return f, nil
	}
	// unmapped prefix, keep the payload for the caller
	return Frame{Kind: FrameUnknown, Raw: string(data)}, nil
}

func closeFrame(status int, reason string) string {
	return fmt.Sprintf(`c[%d,%q]`, status, reason)
}

func quote(in string) string {
	quoted, _ := json.Marshal(in)
	return string(quoted)
}

func transform(values []string, transformFn func(string) string) []string {
	ret := make([]string, len(values))
	for i, v := range values {
		ret[i] = transformFn(v)
	}
	return ret
}
