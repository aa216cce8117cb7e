// Package protocol implements the three wire formats spoken by the server:
// the line-delimited JSON session protocol, the minimal WebSocket frame
// subset used by the push notifier, and the length-prefixed assignment
// upload framing.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Message type names for the line-delimited session protocol. TypeVote
// is a ballot cast inbound and the tally announcement outbound; the
// direction disambiguates.
const (
	TypeJoin        = "join"
	TypeAnswer      = "answer"
	TypeVote        = "vote"
	TypeQuizAnswer  = "quizAnswer"
	TypeChat        = "chat"
	TypeWelcome     = "welcome"
	TypePoll        = "poll"
	TypeResult      = "result"
	TypeVoteClosed  = "voteClosed"
	TypeQuizReveal  = "quizReveal"
	TypeChatCleared = "chatCleared"
	TypeAck         = "ack"
	TypeError       = "error"
)

// TypeAssignmentUpload is the notice pushed through the notifier after
// an accepted upload.
const TypeAssignmentUpload = "assignment_upload"

// Heartbeat tokens. A bare PING line gets a bare PONG reply; neither is JSON.
const (
	HeartbeatPing = "PING"
	HeartbeatPong = "PONG"
)

// MaxLineBytes bounds a single protocol line. Longer lines are a protocol
// violation and close the connection.
const MaxLineBytes = 64 * 1024

// Inbound is a client-to-server line. The protocol is flat JSON
// discriminated by "type"; fields not used by a given type stay zero.
type Inbound struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	PollID  string `json:"pollId,omitempty"`
	VoteID  string `json:"voteId,omitempty"`
	Choice  *int   `json:"choice,omitempty"`
	Message string `json:"message,omitempty"`
}

// DecodeInbound parses one client line.
func DecodeInbound(line []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(line, &in); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if in.Type == "" {
		return nil, fmt.Errorf("message missing type")
	}
	return &in, nil
}

// Encode marshals a server-to-client message of the given type with the
// given fields and appends the line terminator.
func Encode(typ string, fields map[string]any) ([]byte, error) {
	obj := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		obj[k] = v
	}
	obj["type"] = typ
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return append(b, '\n'), nil
}

// MustEncode is Encode for messages built from plain maps and scalars,
// where marshalling cannot fail.
func MustEncode(typ string, fields map[string]any) []byte {
	b, err := Encode(typ, fields)
	if err != nil {
		panic(err)
	}
	return b
}

// Fields flattens a json-tagged struct into an Encode fields map, so
// engine snapshots can be broadcast without hand-copying every field.
func Fields(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("fields from %T: %v", v, err))
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(fmt.Sprintf("fields from %T: %v", v, err))
	}
	return m
}

// NewLineScanner returns a scanner over the session protocol with the
// line-length cap applied.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 4096), MaxLineBytes)
	return sc
}
