package nem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// STOMP commands used by the NIS push API.
const (
	cmdConnect     = "CONNECT"
	cmdConnected   = "CONNECTED"
	cmdSubscribe   = "SUBSCRIBE"
	cmdUnsubscribe = "UNSUBSCRIBE"
	cmdSend        = "SEND"
	cmdMessage     = "MESSAGE"
	cmdError       = "ERROR"
	cmdDisconnect  = "DISCONNECT"
	cmdReceipt     = "RECEIPT"
)

// frame is a STOMP 1.1 frame.
type frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

func newFrame(command string, headers map[string]string, body []byte) *frame {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &frame{Command: command, Headers: headers, Body: body}
}

// encode renders the frame. Headers are sorted for deterministic output.
func (f *frame) encode() string {
	var b strings.Builder
	b.WriteString(f.Command)
	b.WriteByte('\n')

	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(escapeHeader(k))
		b.WriteByte(':')
		b.WriteString(escapeHeader(f.Headers[k]))
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		b.WriteString(fmt.Sprintf("content-length:%d\n", len(f.Body)))
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.String()
}

// decodeFrame parses a single STOMP frame.
func decodeFrame(raw string) (*frame, error) {
	raw = strings.TrimLeft(raw, "\r\n")
	raw = strings.TrimSuffix(raw, "\x00")
	if raw == "" {
		return nil, fmt.Errorf("empty frame")
	}

	head, body, found := strings.Cut(raw, "\n\n")
	if !found {
		// Frame without headers or body separator
		head = raw
	}
	lines := strings.Split(strings.ReplaceAll(head, "\r\n", "\n"), "\n")

	f := newFrame(lines[0], nil, nil)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		k = unescapeHeader(k)
		// Repeated headers: first value wins
		if _, exists := f.Headers[k]; !exists {
			f.Headers[k] = unescapeHeader(v)
		}
	}
	f.Body = []byte(body)
	return f, nil
}

var headerEscaper = strings.NewReplacer("\\", "\\\\", "\n", "\\n", ":", "\\c")
var headerUnescaper = strings.NewReplacer("\\\\", "\\", "\\n", "\n", "\\c", ":")

func escapeHeader(s string) string   { return headerEscaper.Replace(s) }
func unescapeHeader(s string) string { return headerUnescaper.Replace(s) }

// SockJS frame types.
const (
	sockOpen      = 'o'
	sockHeartbeat = 'h'
	sockArray     = 'a'
	sockClose     = 'c'
)

// sockjsEncode wraps STOMP frames into a SockJS client message.
func sockjsEncode(frames ...*frame) ([]byte, error) {
	payload := make([]string, len(frames))
	for i, f := range frames {
		payload[i] = f.encode()
	}
	return json.Marshal(payload)
}

// sockjsMessage is one decoded SockJS server message.
type sockjsMessage struct {
	Kind   byte
	Frames []*frame
	// CloseCode and CloseReason are set for 'c' messages.
	CloseCode   int
	CloseReason string
}

// sockjsDecode parses a SockJS server message.
func sockjsDecode(data []byte) (*sockjsMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty sockjs message")
	}

	msg := &sockjsMessage{Kind: data[0]}
	switch msg.Kind {
	case sockOpen, sockHeartbeat:
		return msg, nil
	case sockArray:
		var payload []string
		if err := json.Unmarshal(data[1:], &payload); err != nil {
			return nil, fmt.Errorf("decode sockjs array: %w", err)
		}
		for _, p := range payload {
			f, err := decodeFrame(p)
			if err != nil {
				return nil, err
			}
			msg.Frames = append(msg.Frames, f)
		}
		return msg, nil
	case sockClose:
		var payload []interface{}
		if err := json.Unmarshal(data[1:], &payload); err == nil && len(payload) == 2 {
			if code, ok := payload[0].(float64); ok {
				msg.CloseCode = int(code)
			}
			if reason, ok := payload[1].(string); ok {
				msg.CloseReason = reason
			}
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown sockjs frame type %q", msg.Kind)
	}
}
