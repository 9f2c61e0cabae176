package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dfcx-bridge/go-bridge/session"
)

var errChannelClosed = errors.New("channel is closed")

// wsChannel is a session.Channel backed by one websocket connection. Media
// commands become server messages and the host answers sync playback with
// play_done.
type wsChannel struct {
	sessionId       string
	conn            *websocket.Conn
	variables       *session.MapVariables
	writeTimeout    time.Duration
	playbackTimeout time.Duration

	writeMu sync.Mutex

	mu           sync.Mutex
	closed       bool
	hangupHooks  []func()
	pendingPlays map[string]chan struct{}
}

func newWsChannel(conn *websocket.Conn, sessionId string, variables *session.MapVariables,
	writeTimeout time.Duration, playbackTimeout time.Duration) *wsChannel {

	return &wsChannel{
		sessionId:       sessionId,
		conn:            conn,
		variables:       variables,
		writeTimeout:    writeTimeout,
		playbackTimeout: playbackTimeout,
		pendingPlays:    make(map[string]chan struct{}),
	}
}

// send writes one server message. Writes are serialized because the
// response listener and the connection reader both send.
func (channel *wsChannel) send(message ServerMessage) error {

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	channel.writeMu.Lock()
	defer channel.writeMu.Unlock()

	if channel.writeTimeout > 0 {
		_ = channel.conn.SetWriteDeadline(time.Now().Add(channel.writeTimeout))
	}
	return channel.conn.WriteMessage(websocket.TextMessage, data)
}

func (channel *wsChannel) sendError(message string) {

	getLogger().Warn("media host error",
		"sessionId", channel.sessionId,
		"message", message)
	_ = channel.send(ServerMessage{Type: MessageError, SessionId: channel.sessionId, Message: message})
}

func (channel *wsChannel) Variables() session.Variables {

	return channel.variables
}

func (channel *wsChannel) Ready() bool {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	return !channel.closed
}

func (channel *wsChannel) OnHangup(fn func()) {

	channel.mu.Lock()
	if !channel.closed {
		channel.hangupHooks = append(channel.hangupHooks, fn)
		channel.mu.Unlock()
		return
	}
	channel.mu.Unlock()
	fn()
}

// Hangup tells the host to clear the call.
func (channel *wsChannel) Hangup() error {

	err := channel.send(ServerMessage{Type: MessageHangup, SessionId: channel.sessionId})
	channel.close()
	return err
}

// Transfer tells the host to move the call.
func (channel *wsChannel) Transfer(exten, dialplan, context string) error {

	if !channel.Ready() {
		return errChannelClosed
	}
	err := channel.send(ServerMessage{
		Type:      MessageTransfer,
		SessionId: channel.sessionId,
		Exten:     exten,
		Dialplan:  dialplan,
		Context:   context,
	})
	if err == nil {
		channel.close()
	}
	return err
}

// PlayFile sends path to the host and waits for its play_done, the playback
// timeout or ctx.
func (channel *wsChannel) PlayFile(ctx context.Context, path string) error {

	id := uuid.NewString()
	done := make(chan struct{})

	channel.mu.Lock()
	if channel.closed {
		channel.mu.Unlock()
		return errChannelClosed
	}
	channel.pendingPlays[id] = done
	channel.mu.Unlock()

	defer func() {
		channel.mu.Lock()
		delete(channel.pendingPlays, id)
		channel.mu.Unlock()
	}()

	if err := channel.sendFile(path, id, true); err != nil {
		return err
	}

	var timeout <-chan time.Time
	if channel.playbackTimeout > 0 {
		timer := time.NewTimer(channel.playbackTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
		return nil
	case <-timeout:
		return fmt.Errorf("playback %s timed out after %v", id, channel.playbackTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BroadcastFile sends path to the host without waiting.
func (channel *wsChannel) BroadcastFile(path string) error {

	if !channel.Ready() {
		return errChannelClosed
	}
	return channel.sendFile(path, uuid.NewString(), false)
}

func (channel *wsChannel) sendFile(path string, id string, sync bool) error {

	audio, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return channel.send(ServerMessage{
		Type:      MessagePlay,
		SessionId: channel.sessionId,
		Id:        id,
		Audio:     audio,
		Sync:      sync,
	})
}

func (channel *wsChannel) PublishEvent(name string, body []byte) {

	err := channel.send(ServerMessage{
		Type:      MessageNotify,
		SessionId: channel.sessionId,
		Name:      name,
		Body:      body,
	})
	if err != nil {
		getLogger().Warn("unable to publish event",
			"sessionId", channel.sessionId,
			"event", name,
			"error", err)
	}
}

// playDone releases the PlayFile waiting on id.
func (channel *wsChannel) playDone(id string) bool {

	channel.mu.Lock()
	defer channel.mu.Unlock()

	done, ok := channel.pendingPlays[id]
	if ok {
		close(done)
		delete(channel.pendingPlays, id)
	}
	return ok
}

// close marks the call gone and runs the hangup hooks once.
func (channel *wsChannel) close() {

	channel.mu.Lock()
	if channel.closed {
		channel.mu.Unlock()
		return
	}
	channel.closed = true
	hooks := channel.hangupHooks
	channel.hangupHooks = nil
	channel.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}
