package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// fakeStream is an in-memory StreamingDetectIntent stream. Responses are
// queued on the responses channel; closing it ends the stream with endErr.
type fakeStream struct {
	grpc.ClientStream

	ctx       context.Context
	responses chan *cxpb.StreamingDetectIntentResponse

	mu         sync.Mutex
	sent       []*cxpb.StreamingDetectIntentRequest
	halfClosed bool
	sendErr    error
	endErr     error
}

func newFakeStream() *fakeStream {

	return &fakeStream{
		ctx:       context.Background(),
		responses: make(chan *cxpb.StreamingDetectIntentResponse, 16),
	}
}

func (stream *fakeStream) Send(request *cxpb.StreamingDetectIntentRequest) error {

	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.sendErr != nil {
		return stream.sendErr
	}
	if stream.halfClosed {
		return io.EOF
	}
	stream.sent = append(stream.sent, proto.Clone(request).(*cxpb.StreamingDetectIntentRequest))
	return nil
}

func (stream *fakeStream) Recv() (*cxpb.StreamingDetectIntentResponse, error) {

	select {
	case <-stream.ctx.Done():
		return nil, status.Error(codes.Canceled, "context canceled")
	case response, ok := <-stream.responses:
		if !ok {
			stream.mu.Lock()
			defer stream.mu.Unlock()
			if stream.endErr != nil {
				return nil, stream.endErr
			}
			return nil, io.EOF
		}
		return response, nil
	}
}

func (stream *fakeStream) CloseSend() error {

	stream.mu.Lock()
	defer stream.mu.Unlock()
	stream.halfClosed = true
	return nil
}

func (stream *fakeStream) Context() context.Context {

	return stream.ctx
}

func (stream *fakeStream) sentRequests() []*cxpb.StreamingDetectIntentRequest {

	stream.mu.Lock()
	defer stream.mu.Unlock()
	return append([]*cxpb.StreamingDetectIntentRequest(nil), stream.sent...)
}

func (stream *fakeStream) isHalfClosed() bool {

	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.halfClosed
}

// endWith closes the stream from the server side with err.
func (stream *fakeStream) endWith(err error) {

	stream.mu.Lock()
	stream.endErr = err
	stream.mu.Unlock()
	close(stream.responses)
}

// fakeClient hands out fakeStreams and records them.
type fakeClient struct {
	mu      sync.Mutex
	streams []*fakeStream
	openErr error
	closed  bool
}

func (client *fakeClient) StreamingDetectIntent(ctx context.Context, _ ...gax.CallOption) (cxpb.Sessions_StreamingDetectIntentClient, error) {

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.openErr != nil {
		return nil, client.openErr
	}
	stream := newFakeStream()
	stream.ctx = ctx
	client.streams = append(client.streams, stream)
	return stream, nil
}

func (client *fakeClient) Close() error {

	client.mu.Lock()
	defer client.mu.Unlock()
	client.closed = true
	return nil
}

func (client *fakeClient) setOpenErr(err error) {

	client.mu.Lock()
	defer client.mu.Unlock()
	client.openErr = err
}

func (client *fakeClient) streamCount() int {

	client.mu.Lock()
	defer client.mu.Unlock()
	return len(client.streams)
}

func (client *fakeClient) isClosed() bool {

	client.mu.Lock()
	defer client.mu.Unlock()
	return client.closed
}

// stream waits for the stream with the given index to be opened.
func (client *fakeClient) stream(t *testing.T, index int) *fakeStream {

	t.Helper()
	require.Eventually(t, func() bool {
		return client.streamCount() > index
	}, 2*time.Second, 5*time.Millisecond, "stream %d never opened", index)

	client.mu.Lock()
	defer client.mu.Unlock()
	return client.streams[index]
}

type publishedEvent struct {
	name string
	body []byte
}

// fakeChannel records every side effect requested by a session.
type fakeChannel struct {
	variables *MapVariables

	mu          sync.Mutex
	notReady    bool
	hangupHooks []func()
	hangups     int
	transfers   []TransferTarget
	transferErr error
	played      []string
	broadcast   []string
	events      []publishedEvent

	// playGate, when set, blocks PlayFile until it is closed.
	playGate chan struct{}
}

func newFakeChannel(variables map[string]string) *fakeChannel {

	if variables == nil {
		variables = map[string]string{}
	}
	if _, ok := variables[credentialsVariable]; !ok {
		variables[credentialsVariable] = `{"type":"service_account"}`
	}
	return &fakeChannel{variables: NewMapVariables(variables)}
}

func (channel *fakeChannel) Variables() Variables {

	return channel.variables
}

func (channel *fakeChannel) Ready() bool {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	return !channel.notReady
}

func (channel *fakeChannel) OnHangup(fn func()) {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	channel.hangupHooks = append(channel.hangupHooks, fn)
}

func (channel *fakeChannel) Hangup() error {

	channel.mu.Lock()
	channel.hangups++
	hooks := channel.hangupHooks
	channel.hangupHooks = nil
	channel.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	return nil
}

func (channel *fakeChannel) Transfer(exten, dialplan, context string) error {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	channel.transfers = append(channel.transfers, TransferTarget{Exten: exten, Dialplan: dialplan, Context: context})
	return channel.transferErr
}

func (channel *fakeChannel) PlayFile(ctx context.Context, path string) error {

	channel.mu.Lock()
	channel.played = append(channel.played, path)
	gate := channel.playGate
	channel.mu.Unlock()

	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (channel *fakeChannel) BroadcastFile(path string) error {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	channel.broadcast = append(channel.broadcast, path)
	return nil
}

func (channel *fakeChannel) PublishEvent(name string, body []byte) {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	channel.events = append(channel.events, publishedEvent{name: name, body: body})
}

func (channel *fakeChannel) publishedEvents() []publishedEvent {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	return append([]publishedEvent(nil), channel.events...)
}

func (channel *fakeChannel) playedFiles() []string {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	return append([]string(nil), channel.played...)
}

func (channel *fakeChannel) transferTargets() []TransferTarget {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	return append([]TransferTarget(nil), channel.transfers...)
}

func (channel *fakeChannel) hangupCount() int {

	channel.mu.Lock()
	defer channel.mu.Unlock()
	return channel.hangups
}

type recordedEvent struct {
	kind    string
	payload []byte
}

// eventRecorder collects ResponseHandler and ErrorHandler calls.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
	errors [][]byte
}

func (recorder *eventRecorder) onResponse(_ string, kind string, payload []byte) {

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.events = append(recorder.events, recordedEvent{kind: kind, payload: payload})
}

func (recorder *eventRecorder) onError(_ string, payload []byte) {

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.errors = append(recorder.errors, payload)
}

func (recorder *eventRecorder) kinds() []string {

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	kinds := make([]string, 0, len(recorder.events))
	for _, event := range recorder.events {
		kinds = append(kinds, event.kind)
	}
	return kinds
}

func (recorder *eventRecorder) errorPayloads() [][]byte {

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return append([][]byte(nil), recorder.errors...)
}

// testTarget is the stream target used by controller tests.
func testTarget() *streamTarget {

	return &streamTarget{
		sessionPath:  "projects/p/locations/us/agents/a/sessions/s1",
		languageCode: "en-US",
		params:       &QueryParameters{Channel: "voice", Values: map[string]any{"caller": "5551234"}},
	}
}

// intentResponse builds a final detect intent response.
func intentResponse(intentName string, pageName string, audio []byte, params map[string]any) *cxpb.StreamingDetectIntentResponse {

	queryResult := &cxpb.QueryResult{
		LanguageCode: "en-US",
		Match: &cxpb.Match{
			Intent: &cxpb.Intent{Name: "projects/p/intents/1", DisplayName: intentName},
		},
	}
	if pageName != "" {
		queryResult.CurrentPage = &cxpb.Page{Name: "projects/p/pages/1", DisplayName: pageName}
	}
	if params != nil {
		queryResult.Parameters = mustStruct(params)
	}

	detectIntentResponse := &cxpb.DetectIntentResponse{
		ResponseId:  "response-1",
		QueryResult: queryResult,
		OutputAudio: audio,
	}
	if len(audio) > 0 {
		detectIntentResponse.OutputAudioConfig = &cxpb.OutputAudioConfig{
			AudioEncoding:   cxpb.OutputAudioEncoding_OUTPUT_AUDIO_ENCODING_LINEAR_16,
			SampleRateHertz: 16000,
		}
	}

	return &cxpb.StreamingDetectIntentResponse{
		Response: &cxpb.StreamingDetectIntentResponse_DetectIntentResponse{
			DetectIntentResponse: detectIntentResponse,
		},
	}
}

func recognitionResponse(transcript string, messageType cxpb.StreamingRecognitionResult_MessageType) *cxpb.StreamingDetectIntentResponse {

	return &cxpb.StreamingDetectIntentResponse{
		Response: &cxpb.StreamingDetectIntentResponse_RecognitionResult{
			RecognitionResult: &cxpb.StreamingRecognitionResult{
				MessageType: messageType,
				Transcript:  transcript,
				IsFinal:     messageType == cxpb.StreamingRecognitionResult_TRANSCRIPT,
			},
		},
	}
}

func mustStruct(values map[string]any) *structpb.Struct {

	converted, err := structpb.NewStruct(values)
	if err != nil {
		panic(err)
	}
	return converted
}
