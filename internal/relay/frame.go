package relay

import (
	"encoding/json"
	"errors"
)

// Client commands.
const (
	CmdConnect     = "CONNECT"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdDisconnect  = "DISCONNECT"
)

// Server commands.
const (
	CmdConnected = "CONNECTED"
	CmdReceipt   = "RECEIPT"
	CmdMessage   = "MESSAGE"
	CmdError     = "ERROR"
)

// ProtocolVersion is reported in CONNECTED frames.
const ProtocolVersion = "1.0"

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrUnknownDestination = errors.New("unknown destination")
	ErrMissingID          = errors.New("subscription id is required")
	ErrDuplicateID        = errors.New("subscription id already in use")
	ErrUnknownID          = errors.New("unknown subscription id")
	ErrSlowPeer           = errors.New("peer send buffer full")
)

// Frame is one protocol message in either direction.
type Frame struct {
	Command      string          `json:"command"`
	Destination  string          `json:"destination,omitempty"`
	ID           string          `json:"id,omitempty"`           // Subscription id (client frames)
	Subscription string          `json:"subscription,omitempty"` // Subscription id (MESSAGE)
	MessageID    string          `json:"message_id,omitempty"`
	Receipt      string          `json:"receipt,omitempty"` // Echoed in RECEIPT
	Session      string          `json:"session,omitempty"`
	Version      string          `json:"version,omitempty"`
	Replay       bool            `json:"replay,omitempty"` // History delivered on subscribe
	Message      string          `json:"message,omitempty"`
	Body         json.RawMessage `json:"body,omitempty"`
}

func encodeFrame(f Frame) []byte {
	// Bodies are validated JSON by the time they reach a frame.
	data, _ := json.Marshal(f)
	return data
}

func errorFrame(err error) []byte {
	return encodeFrame(Frame{Command: CmdError, Message: err.Error()})
}
