package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SessionsClient is the part of the Dialogflow CX Sessions client used by
// the bridge. *cx.SessionsClient satisfies it.
type SessionsClient interface {
	StreamingDetectIntent(ctx context.Context, opts ...gax.CallOption) (cxpb.Sessions_StreamingDetectIntentClient, error)
	Close() error
}

// StreamTransport owns one StreamingDetectIntent stream.
//
// Write and HalfClose must not be called concurrently with each other; the
// session lock serializes them. Read runs on the reader goroutine alongside
// writes.
type StreamTransport struct {
	sync.Mutex

	client        SessionsClient
	parentContext context.Context
	streamContext context.Context
	streamCancel  context.CancelFunc
	stream        cxpb.Sessions_StreamingDetectIntentClient

	recvErr  error
	finished bool
}

// openStreamTransport opens a new stream on client. The stream lives until
// Finish is called or parentContext is done.
func openStreamTransport(parentContext context.Context, client SessionsClient) (transport *StreamTransport, err error) {

	streamContext, streamCancel := context.WithCancel(parentContext)

	stream, err := client.StreamingDetectIntent(streamContext)
	if err != nil {
		streamCancel()
		return nil, err
	}

	transport = &StreamTransport{
		client:        client,
		parentContext: parentContext,
		streamContext: streamContext,
		streamCancel:  streamCancel,
		stream:        stream,
	}

	return transport, nil
}

// Write sends one request and reports whether it was accepted.
func (transport *StreamTransport) Write(request *cxpb.StreamingDetectIntentRequest) bool {

	if transport.isFinished() {
		return false
	}

	if err := transport.stream.Send(request); err != nil {
		getLogger().Debug("stream send failed",
			"error", err)
		return false
	}
	return true
}

// Read blocks for the next response. It returns false once the stream has
// ended, recording the terminal error for Finish.
func (transport *StreamTransport) Read() (*cxpb.StreamingDetectIntentResponse, bool) {

	response, err := transport.stream.Recv()
	if err != nil {
		transport.Lock()
		if transport.recvErr == nil {
			transport.recvErr = err
		}
		transport.Unlock()
		return nil, false
	}
	return response, true
}

// HalfClose tells the server no more requests will be sent.
func (transport *StreamTransport) HalfClose() {

	if transport.isFinished() {
		return
	}

	if err := transport.stream.CloseSend(); err != nil {
		getLogger().Debug("stream half-close failed",
			"error", err)
	}
}

// Finish ends the stream and returns its final status. Only the first call
// reports the stream outcome; later calls return OK at once. Cancelling the
// stream context unblocks a pending Read.
func (transport *StreamTransport) Finish() *status.Status {

	transport.Lock()
	defer transport.Unlock()

	if transport.finished {
		return status.New(codes.OK, "")
	}
	transport.finished = true
	transport.streamCancel()

	if transport.recvErr == nil || errors.Is(transport.recvErr, io.EOF) {
		return status.New(codes.OK, "")
	}
	return status.Convert(transport.recvErr)
}

// Reopen opens a replacement stream on the same client.
func (transport *StreamTransport) Reopen() (*StreamTransport, error) {

	return openStreamTransport(transport.parentContext, transport.client)
}

func (transport *StreamTransport) isFinished() bool {

	transport.Lock()
	defer transport.Unlock()
	return transport.finished
}
