package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dfcx-bridge/go-bridge/client"
	"github.com/dfcx-bridge/go-bridge/config"
	"github.com/dfcx-bridge/go-bridge/session"
)

const testTimeout = 2 * time.Second

type testStream struct {
	grpc.ClientStream

	ctx       context.Context
	responses chan *cxpb.StreamingDetectIntentResponse

	mu   sync.Mutex
	sent []*cxpb.StreamingDetectIntentRequest
}

func (stream *testStream) Send(request *cxpb.StreamingDetectIntentRequest) error {

	stream.mu.Lock()
	defer stream.mu.Unlock()
	stream.sent = append(stream.sent, request)
	return nil
}

func (stream *testStream) Recv() (*cxpb.StreamingDetectIntentResponse, error) {

	select {
	case <-stream.ctx.Done():
		return nil, status.Error(codes.Canceled, "context canceled")
	case response := <-stream.responses:
		return response, nil
	}
}

func (stream *testStream) CloseSend() error {

	return nil
}

func (stream *testStream) sentRequests() []*cxpb.StreamingDetectIntentRequest {

	stream.mu.Lock()
	defer stream.mu.Unlock()
	return append([]*cxpb.StreamingDetectIntentRequest(nil), stream.sent...)
}

type testSessionsClient struct {
	streams chan *testStream
}

func (sessionsClient *testSessionsClient) StreamingDetectIntent(ctx context.Context, _ ...gax.CallOption) (cxpb.Sessions_StreamingDetectIntentClient, error) {

	stream := &testStream{
		ctx:       ctx,
		responses: make(chan *cxpb.StreamingDetectIntentResponse, 8),
	}
	sessionsClient.streams <- stream
	return stream, nil
}

func (sessionsClient *testSessionsClient) Close() error {

	return nil
}

func (sessionsClient *testSessionsClient) nextStream(t *testing.T) *testStream {

	t.Helper()
	select {
	case stream := <-sessionsClient.streams:
		return stream
	case <-time.After(testTimeout):
		t.Fatal("no stream opened")
		return nil
	}
}

func (sessionsClient *testSessionsClient) assertNoStream(t *testing.T, wait time.Duration) {

	t.Helper()
	select {
	case <-sessionsClient.streams:
		t.Fatal("unexpected stream opened")
	case <-time.After(wait):
	}
}

type testServer struct {
	url            string
	sessionsClient *testSessionsClient
}

func newTestServer(t *testing.T, playbackTimeoutSeconds int) *testServer {

	t.Helper()

	configValues, err := config.GetConfigValues("")
	require.NoError(t, err)
	configValues.Credentials = `{"type":"service_account"}`
	configValues.AgentToken = "proj:agent"
	configValues.TempDir = t.TempDir()
	configValues.PlaybackTimeoutSeconds = playbackTimeoutSeconds

	sdkClient, err := client.CreateSdkClient(configValues)
	require.NoError(t, err)

	sessionsClient := &testSessionsClient{streams: make(chan *testStream, 8)}
	sdkClient.ClientFactory = func(ctx context.Context, address *session.SessionAddress, credentials string) (session.SessionsClient, error) {
		return sessionsClient, nil
	}

	httpServer := httptest.NewServer(NewServeMux(NewMediaHandler(sdkClient), nil))
	t.Cleanup(httpServer.Close)

	return &testServer{
		url:            "ws" + strings.TrimPrefix(httpServer.URL, "http") + MediaPath,
		sessionsClient: sessionsClient,
	}
}

func (server *testServer) dial(t *testing.T) *websocket.Conn {

	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(server.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// start sends a start message and waits for the session to be running.
func (server *testServer) start(t *testing.T, conn *websocket.Conn, start ClientMessage) (*testStream, string) {

	t.Helper()
	start.Type = MessageStart
	if start.SampleRate == 0 {
		start.SampleRate = 16000
	}
	require.NoError(t, conn.WriteJSON(start))

	started := readMessage(t, conn)
	require.Equal(t, MessageStarted, started.Type, "message: %+v", started)
	return server.sessionsClient.nextStream(t), started.SessionId
}

func readMessage(t *testing.T, conn *websocket.Conn) (message ServerMessage) {

	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	require.NoError(t, conn.ReadJSON(&message))
	return message
}

func intentResponse(t *testing.T, intentName string, audio []byte, params map[string]any) *cxpb.StreamingDetectIntentResponse {

	t.Helper()
	queryResult := &cxpb.QueryResult{
		LanguageCode: "en-US",
		Match:        &cxpb.Match{Intent: &cxpb.Intent{DisplayName: intentName}},
	}
	if params != nil {
		parameters, err := structpb.NewStruct(params)
		require.NoError(t, err)
		queryResult.Parameters = parameters
	}

	detectIntentResponse := &cxpb.DetectIntentResponse{ResponseId: "r-1", QueryResult: queryResult, OutputAudio: audio}
	if len(audio) > 0 {
		detectIntentResponse.OutputAudioConfig = &cxpb.OutputAudioConfig{
			AudioEncoding:   cxpb.OutputAudioEncoding_OUTPUT_AUDIO_ENCODING_LINEAR_16,
			SampleRateHertz: 16000,
		}
	}
	return &cxpb.StreamingDetectIntentResponse{
		Response: &cxpb.StreamingDetectIntentResponse_DetectIntentResponse{DetectIntentResponse: detectIntentResponse},
	}
}

// barrier waits until every earlier frame sent on conn has been handled.
func barrier(t *testing.T, conn *websocket.Conn) {

	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "barrier"}))
	for {
		message := readMessage(t, conn)
		if message.Type == MessageError && strings.Contains(message.Message, "barrier") {
			return
		}
	}
}

func TestFirstFrameMustBeStart(t *testing.T) {

	server := newTestServer(t, 0)
	conn := server.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 0}))

	message := readMessage(t, conn)
	assert.Equal(t, MessageError, message.Type)
	assert.Contains(t, message.Message, "start message")
}

func TestStartFailureReported(t *testing.T) {

	server := newTestServer(t, 0)
	conn := server.dial(t)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageStart, AgentToken: ":agent"}))

	message := readMessage(t, conn)
	assert.Equal(t, MessageError, message.Type)
	assert.Contains(t, message.Message, session.ErrInvalidAddress.Error())
}

func TestMethodNotAllowed(t *testing.T) {

	server := newTestServer(t, 0)

	response, err := http.Post("http"+strings.TrimPrefix(server.url, "ws"), "application/json", nil)
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, response.StatusCode)
}

func TestAudioFramesReachStream(t *testing.T) {

	server := newTestServer(t, 0)
	conn := server.dial(t)

	stream, sessionId := server.start(t, conn, ClientMessage{SessionId: "ws-audio"})
	assert.Equal(t, "ws-audio", sessionId)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 0, 2, 0}))

	require.Eventually(t, func() bool {
		return len(stream.sentRequests()) == 2
	}, testTimeout, 5*time.Millisecond)

	sent := stream.sentRequests()
	assert.Contains(t, sent[0].GetSession(), "projects/proj/locations/us/agents/agent/sessions/ws-audio")
	assert.Equal(t, []byte{1, 0, 2, 0}, sent[1].GetQueryInput().GetAudio().GetAudio())
}

func TestEventsForwarded(t *testing.T) {

	server := newTestServer(t, 0)
	conn := server.dial(t)

	stream, sessionId := server.start(t, conn, ClientMessage{Event: "WELCOME"})
	assert.Equal(t, "WELCOME", stream.sentRequests()[0].GetQueryInput().GetEvent().GetEvent())

	stream.responses <- intentResponse(t, "Greeting", nil, nil)

	message := readMessage(t, conn)
	assert.Equal(t, MessageEvent, message.Type)
	assert.Equal(t, session.EventIntent, message.Kind)
	assert.Equal(t, sessionId, message.SessionId)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(message.Payload, &payload))
	assert.Equal(t, "r-1", payload["response_id"])
}

func TestSyncPlaybackWaitsForPlayDone(t *testing.T) {

	server := newTestServer(t, 0)
	conn := server.dial(t)

	stream, _ := server.start(t, conn, ClientMessage{Variables: map[string]string{"DIALOGFLOW_AUTOPLAY": "true"}})

	stream.responses <- intentResponse(t, "Greeting", []byte("RIFFaudio"), nil)

	assert.Equal(t, session.EventIntent, readMessage(t, conn).Kind)
	assert.Equal(t, session.EventAudioProvided, readMessage(t, conn).Kind)

	play := readMessage(t, conn)
	require.Equal(t, MessagePlay, play.Type)
	assert.True(t, play.Sync)
	assert.Equal(t, []byte("RIFFaudio"), play.Audio)
	require.NotEmpty(t, play.Id)

	server.sessionsClient.assertNoStream(t, 100*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessagePlayDone, Id: play.Id}))

	rotated := server.sessionsClient.nextStream(t)
	require.Eventually(t, func() bool {
		return len(rotated.sentRequests()) == 1
	}, testTimeout, 5*time.Millisecond)
	assert.NotNil(t, rotated.sentRequests()[0].GetQueryInput().GetAudio().GetConfig())
}

func TestSyncPlaybackTimeout(t *testing.T) {

	server := newTestServer(t, 1)
	conn := server.dial(t)

	stream, _ := server.start(t, conn, ClientMessage{Variables: map[string]string{"DIALOGFLOW_AUTOPLAY": "true"}})

	stream.responses <- intentResponse(t, "Greeting", []byte("RIFF"), nil)
	for readMessage(t, conn).Type != MessagePlay {
	}

	select {
	case <-server.sessionsClient.streams:
	case <-time.After(3 * time.Second):
		t.Fatal("playback timeout did not rotate the stream")
	}
}

func TestSetVariablesAppliesMidCall(t *testing.T) {

	server := newTestServer(t, 0)
	conn := server.dial(t)

	stream, _ := server.start(t, conn, ClientMessage{})

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:      MessageSetVariables,
		Variables: map[string]string{"DIALOGFLOW_AUTOPLAY": "true", "DIALOGFLOW_AUTOPLAY_SYNC": "false"},
	}))
	barrier(t, conn)

	stream.responses <- intentResponse(t, "Greeting", []byte("RIFF"), nil)

	var play ServerMessage
	for play.Type != MessagePlay {
		play = readMessage(t, conn)
	}
	assert.False(t, play.Sync)
	server.sessionsClient.nextStream(t)
}

func TestTransferSentToHost(t *testing.T) {

	server := newTestServer(t, 0)
	conn := server.dial(t)

	stream, _ := server.start(t, conn, ClientMessage{})

	stream.responses <- intentResponse(t, "TRANSFER TO HUMAN", nil, map[string]any{"exten": "3000"})

	assert.Equal(t, session.EventIntent, readMessage(t, conn).Kind)

	notify := readMessage(t, conn)
	assert.Equal(t, MessageNotify, notify.Type)
	assert.Equal(t, session.EventTransfer, notify.Name)

	transfer := readMessage(t, conn)
	assert.Equal(t, MessageTransfer, transfer.Type)
	assert.Equal(t, "3000", transfer.Exten)
	assert.Equal(t, "XML", transfer.Dialplan)
	assert.Equal(t, "default", transfer.Context)

	require.Eventually(t, func() bool {
		return stream.ctx.Err() != nil
	}, testTimeout, 5*time.Millisecond)
}

func TestHostStopEndsSession(t *testing.T) {

	server := newTestServer(t, 0)
	conn := server.dial(t)

	stream, sessionId := server.start(t, conn, ClientMessage{})

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageStop}))

	require.Eventually(t, func() bool {
		_, found := session.GetSession(sessionId)
		return !found && stream.ctx.Err() != nil
	}, testTimeout, 5*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {

	server := newTestServer(t, 0)

	response, err := http.Get("http" + strings.TrimPrefix(strings.TrimSuffix(server.url, MediaPath), "ws") + "/healthz")
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, http.StatusOK, response.StatusCode)
}
