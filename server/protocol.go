package server

import (
	"encoding/json"
)

// Client to server message types. Caller audio travels as binary frames of
// 16-bit little endian PCM at the sample rate declared in the start message.
const (
	MessageStart        = "start"
	MessageStop         = "stop"
	MessageSetVariables = "set_variables"
	MessagePlayDone     = "play_done"
	MessageHangup       = "hangup"
)

// Server to client message types.
const (
	MessageEvent    = "event"
	MessageError    = "error"
	MessagePlay     = "play"
	MessageTransfer = "transfer"
	MessageNotify   = "notify"
	MessageStarted  = "started"
)

// ClientMessage is any text frame sent by the media host.
type ClientMessage struct {
	Type string `json:"type"`

	// start
	SessionId    string            `json:"session_id,omitempty"`
	LanguageCode string            `json:"language_code,omitempty"`
	AgentToken   string            `json:"agent_token,omitempty"`
	Event        string            `json:"event,omitempty"`
	Text         string            `json:"text,omitempty"`
	SampleRate   int               `json:"sample_rate,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`

	// set_variables
	Unset []string `json:"unset,omitempty"`

	// play_done
	Id string `json:"id,omitempty"`
}

// ServerMessage is any text frame sent to the media host.
type ServerMessage struct {
	Type string `json:"type"`

	SessionId string `json:"session_id,omitempty"`

	// event
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// play
	Id    string `json:"id,omitempty"`
	Audio []byte `json:"audio,omitempty"`
	Sync  bool   `json:"sync,omitempty"`

	// transfer
	Exten    string `json:"exten,omitempty"`
	Dialplan string `json:"dialplan,omitempty"`
	Context  string `json:"context,omitempty"`

	// notify
	Name string          `json:"name,omitempty"`
	Body json.RawMessage `json:"body,omitempty"`
}

func decodeClientMessage(data []byte) (message ClientMessage, err error) {

	err = json.Unmarshal(data, &message)
	return message, err
}
