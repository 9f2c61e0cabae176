package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Variables exposes the per-call key/value configuration of the host
// channel. Values are read when a session starts and again for every
// response, so hosts may change them mid-call.
type Variables interface {
	// Variable returns the value for name and whether it is set at all.
	Variable(name string) (string, bool)
	// All returns a snapshot of every variable on the channel.
	All() map[string]string
}

// Channel is the host call a session is attached to.
type Channel interface {
	Variables() Variables

	// Ready reports whether media can still be played on the call.
	Ready() bool

	// OnHangup registers fn to run once when the call hangs up.
	OnHangup(fn func())

	// Hangup ends the call with normal clearing.
	Hangup() error

	// Transfer sends the call to exten in the given dialplan and context.
	Transfer(exten, dialplan, context string) error

	// PlayFile plays path to the caller and returns when playback is done or
	// ctx is cancelled.
	PlayFile(ctx context.Context, path string) error

	// BroadcastFile starts playing path to the caller without waiting.
	BroadcastFile(path string) error

	// PublishEvent emits a named notification with a JSON body.
	PublishEvent(name string, body []byte)
}

// ResponseHandler receives classified Dialogflow events for a session.
type ResponseHandler func(sessionId string, eventKind string, payload []byte)

// ErrorHandler receives the final stream error for a session.
type ErrorHandler func(sessionId string, payload []byte)

// MapVariables is a concurrency safe Variables backed by a map.
type MapVariables struct {
	sync.RWMutex
	values map[string]string
}

// NewMapVariables copies initial into a new MapVariables.
func NewMapVariables(initial map[string]string) *MapVariables {

	values := make(map[string]string, len(initial))
	for name, value := range initial {
		values[name] = value
	}
	return &MapVariables{values: values}
}

func (variables *MapVariables) Variable(name string) (string, bool) {

	variables.RLock()
	defer variables.RUnlock()
	value, ok := variables.values[name]
	return value, ok
}

func (variables *MapVariables) All() map[string]string {

	variables.RLock()
	defer variables.RUnlock()
	snapshot := make(map[string]string, len(variables.values))
	for name, value := range variables.values {
		snapshot[name] = value
	}
	return snapshot
}

// Set assigns a variable.
func (variables *MapVariables) Set(name string, value string) {

	variables.Lock()
	defer variables.Unlock()
	variables.values[name] = value
}

// Unset removes a variable.
func (variables *MapVariables) Unset(name string) {

	variables.Lock()
	defer variables.Unlock()
	delete(variables.values, name)
}

// variableValue returns the variable or "" when unset.
func variableValue(variables Variables, name string) string {

	if variables == nil {
		return ""
	}
	value, _ := variables.Variable(name)
	return value
}

// isTrue follows the usual telephony switch notion of truthy strings.
func isTrue(value string) bool {

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "on", "true", "t", "enabled", "enable", "active", "allow":
		return true
	case "":
		return false
	}
	number, err := strconv.Atoi(strings.TrimSpace(value))
	return err == nil && number != 0
}

// variableIsTrue reports whether the named variable holds a truthy value.
func variableIsTrue(variables Variables, name string) bool {

	return isTrue(variableValue(variables, name))
}
