package session

import (
	"errors"
	"fmt"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"
	"google.golang.org/grpc/status"

	"github.com/dfcx-bridge/go-bridge/metrics"
)

// TurnMode is the state of the conversation stream.
type TurnMode int

const (
	// ModeListening means caller audio is forwarded on an audio-shaped stream.
	ModeListening TurnMode = iota
	// ModeEventOrTextStarted means the stream opened with an event or text
	// input and has not been rotated to audio yet.
	ModeEventOrTextStarted
	// ModePaused means caller audio is held back while agent audio plays.
	ModePaused
	// ModeFinished is terminal.
	ModeFinished
)

func (mode TurnMode) String() string {

	switch mode {
	case ModeListening:
		return "listening"
	case ModeEventOrTextStarted:
		return "event_or_text_started"
	case ModePaused:
		return "paused"
	case ModeFinished:
		return "finished"
	default:
		return fmt.Sprintf("TurnMode(%d)", int(mode))
	}
}

// TurnState is a snapshot of a TurnController.
type TurnState struct {
	Mode                  TurnMode
	NeedsFreshAudioConfig bool
	PacketsWritten        uint64
	Rotations             int
}

var errFirstWriteRejected = errors.New("initial request was not accepted by the stream")

// TurnController decides the shape of every outbound request and owns the
// current StreamTransport. It is not safe for concurrent use; callers hold
// the session lock.
type TurnController struct {
	target    *streamTarget
	transport *StreamTransport

	mode                  TurnMode
	resumeMode            TurnMode
	needsFreshAudioConfig bool
	packetsWritten        uint64
	rotations             int
	rotateErr             error
}

func newTurnController(target *streamTarget, transport *StreamTransport) *TurnController {

	return &TurnController{
		target:    target,
		transport: transport,
		mode:      ModeListening,
	}
}

// StartTurn writes the first request of the conversation. An event or text
// kickoff leaves the next audio write responsible for the audio header; an
// audio kickoff sends the header right away.
func (controller *TurnController) StartTurn(kickoff Kickoff) error {

	var request *cxpb.StreamingDetectIntentRequest

	switch {
	case kickoff.Event != "":
		request = getEventRequest(controller.target, kickoff.Event)
		controller.mode = ModeEventOrTextStarted
		controller.needsFreshAudioConfig = true
	case kickoff.Text != "":
		request = getTextRequest(controller.target, kickoff.Text)
		controller.mode = ModeEventOrTextStarted
		controller.needsFreshAudioConfig = true
	default:
		request = getAudioConfigRequest(controller.target, true)
		controller.mode = ModeListening
		controller.needsFreshAudioConfig = false
	}

	if !controller.transport.Write(request) {
		return errFirstWriteRejected
	}
	return nil
}

// PrepareOutboundAudio builds the request for one frame of caller audio. It
// returns false, leaving all counters untouched, when the frame must be
// dropped because the controller is paused or finished.
func (controller *TurnController) PrepareOutboundAudio(audio []byte) (*cxpb.StreamingDetectIntentRequest, bool) {

	if controller.mode == ModeFinished || controller.mode == ModePaused {
		return nil, false
	}

	withConfig := controller.needsFreshAudioConfig
	controller.needsFreshAudioConfig = false
	controller.packetsWritten++

	return getAudioRequest(controller.target, audio, withConfig), true
}

// ArmNextTurn makes the next audio frame open a new turn.
func (controller *TurnController) ArmNextTurn() {

	if controller.mode == ModeFinished {
		return
	}
	controller.needsFreshAudioConfig = true
}

// Pause holds back caller audio while agent audio plays.
func (controller *TurnController) Pause() {

	if controller.mode == ModeFinished || controller.mode == ModePaused {
		return
	}
	controller.resumeMode = controller.mode
	controller.mode = ModePaused
}

// Resume undoes Pause.
func (controller *TurnController) Resume() {

	if controller.mode != ModePaused {
		return
	}
	controller.mode = controller.resumeMode
}

// Rotate replaces the current stream with a new audio-shaped one addressed
// identically, sending its audio header immediately. A failed rotation
// finishes the controller and is reported by RotateError.
func (controller *TurnController) Rotate() error {

	if controller.mode == ModeFinished {
		return nil
	}

	logger := getLogger()
	logger.Debug("rotating stream for next caller turn",
		"session", controller.target.sessionPath,
		"fromMode", controller.mode.String())

	controller.transport.HalfClose()
	controller.transport.Finish()

	transport, err := controller.transport.Reopen()
	if err != nil {
		controller.failRotation(fmt.Errorf("reopening stream: %w", err))
		return controller.rotateErr
	}
	controller.transport = transport

	if !transport.Write(getAudioConfigRequest(controller.target, false)) {
		transport.Finish()
		controller.failRotation(errors.New("audio header rejected by rotated stream"))
		return controller.rotateErr
	}

	controller.mode = ModeListening
	controller.needsFreshAudioConfig = false
	controller.rotations++
	metrics.Default.StreamRotations.Inc()

	return nil
}

func (controller *TurnController) failRotation(err error) {

	getLogger().Error("stream rotation failed",
		"session", controller.target.sessionPath,
		"error", err)
	controller.rotateErr = err
	controller.mode = ModeFinished
}

// RotateError returns the error of a failed rotation, if any.
func (controller *TurnController) RotateError() error {

	return controller.rotateErr
}

// Finish half-closes and finishes the current stream. Only the first call
// reports the stream status; later calls return OK.
func (controller *TurnController) Finish() *status.Status {

	if controller.mode == ModeFinished {
		return controller.transport.Finish()
	}
	controller.mode = ModeFinished

	controller.transport.HalfClose()
	return controller.transport.Finish()
}

// Transport returns the stream currently in use.
func (controller *TurnController) Transport() *StreamTransport {

	return controller.transport
}

// State returns a snapshot of the controller.
func (controller *TurnController) State() TurnState {

	return TurnState{
		Mode:                  controller.mode,
		NeedsFreshAudioConfig: controller.needsFreshAudioConfig,
		PacketsWritten:        controller.packetsWritten,
		Rotations:             controller.rotations,
	}
}
