package session

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"

	"github.com/dfcx-bridge/go-bridge/metrics"
)

// playbackGating is read from the channel for every response so hosts can
// change it mid-call.
type playbackGating struct {
	bargeIn  bool
	autoplay bool
	sync     bool
}

func loadPlaybackGating(variables Variables) (gating playbackGating) {

	gating.bargeIn = variableIsTrue(variables, bargeInVariable)
	gating.autoplay = variableIsTrue(variables, autoplayVariable)

	// Sync playback is the default only when the sync variable is absent.
	syncValue, syncSet := "", false
	if variables != nil {
		syncValue, syncSet = variables.Variable(autoplaySyncVariable)
	}
	gating.sync = isTrue(syncValue)
	if gating.autoplay && !syncSet {
		gating.sync = true
	}

	return gating
}

// holdCaller reports whether caller audio must wait for agent playback.
func (gating playbackGating) holdCaller(hasAudio bool) bool {

	return !gating.bargeIn && gating.autoplay && gating.sync && hasAudio
}

// sessionResponseListener reads every response of the session, following
// the stream through rotations, until the stream ends or an action ends the
// call.
func sessionResponseListener(session *SessionObject) {

	logger := getLogger()
	defer close(session.readerDone)
	defer logger.Debug("exiting response listener",
		"sessionId", session.SessionId)

	for {
		session.Lock()
		transport := session.controller.Transport()
		session.Unlock()

		response, ok := transport.Read()
		if !ok {
			break
		}

		if done := session.handleResponse(response); done {
			break
		}
	}

	session.finishStream()
}

// handleResponse processes one response and reports whether the reader
// should stop.
func (session *SessionObject) handleResponse(response *cxpb.StreamingDetectIntentResponse) (done bool) {

	logger := getLogger()

	if kind := classifyResponse(response); kind != "" {
		metrics.Default.Responses.WithLabelValues(kind).Inc()
		session.emit(kind, marshalPayload(getResponsePayload(response)))
	}

	detectIntentResponse := response.GetDetectIntentResponse()
	if detectIntentResponse == nil {
		return false
	}

	variables := session.channel.Variables()
	gating := loadPlaybackGating(variables)
	outputAudio := detectIntentResponse.GetOutputAudio()

	logger.Debug("detect intent response",
		"sessionId", session.SessionId,
		"responseId", detectIntentResponse.GetResponseId(),
		"audioBytes", len(outputAudio))

	session.Lock()
	if gating.holdCaller(len(outputAudio) > 0) {
		session.controller.Pause()
	} else {
		session.controller.ArmNextTurn()
	}
	session.Unlock()

	if session.runActions(detectIntentResponse.GetQueryResult(), variables) {
		logger.Debug("action taken, leaving response listener",
			"sessionId", session.SessionId)
		return true
	}

	if len(outputAudio) == 0 {
		return false
	}

	if !session.channel.Ready() {
		logger.Warn("channel not ready for agent audio, leaving response listener",
			"sessionId", session.SessionId)
		return true
	}

	path, err := pendingArtifacts.writeArtifact(session.tempDir, session.SessionId,
		detectIntentResponse.GetOutputAudioConfig(), outputAudio)
	if err != nil {
		logger.Error("unable to save agent audio",
			"sessionId", session.SessionId,
			"error", err)
		session.resumeAndRotate(false)
		return false
	}

	logger.Debug("wrote agent audio",
		"sessionId", session.SessionId,
		"path", path)
	metrics.Default.Responses.WithLabelValues(EventAudioProvided).Inc()
	session.emit(EventAudioProvided, marshalPayload(&AudioProvidedPayload{Path: path}))

	session.playAgentAudio(path, gating)

	return false
}

// playAgentAudio plays path when autoplay is on and then opens the next
// caller turn on a fresh stream.
func (session *SessionObject) playAgentAudio(path string, gating playbackGating) {

	logger := getLogger()

	switch {
	case gating.autoplay && gating.sync:
		err := session.channel.PlayFile(session.sessionContext, path)
		logger.Info("played agent audio",
			"sessionId", session.SessionId,
			"path", path,
			"error", err)
		session.resumeAndRotate(true)

	case gating.autoplay:
		err := session.channel.BroadcastFile(path)
		logger.Info("broadcast agent audio",
			"sessionId", session.SessionId,
			"path", path,
			"error", err)
		session.resumeAndRotate(true)

	default:
		session.resumeAndRotate(false)
	}
}

// resumeAndRotate resumes caller audio on a new stream. Unless always is
// set, it only acts when the caller was held or the stream is still shaped
// for event or text input.
func (session *SessionObject) resumeAndRotate(always bool) {

	session.Lock()
	defer session.Unlock()

	mode := session.controller.State().Mode
	if !always && mode != ModePaused && mode != ModeEventOrTextStarted {
		return
	}

	session.controller.Resume()
	_ = session.controller.Rotate()
}

// runActions evaluates end-session then transfer, and reports whether the
// call was ended or transferred.
func (session *SessionObject) runActions(queryResult *cxpb.QueryResult, variables Variables) (acted bool) {

	if queryResult == nil {
		return false
	}

	logger := getLogger()
	rules := LoadActionRules(variables)
	intentName, pageName := displayNames(queryResult)

	if rules.MatchEndSession(queryResult) {
		logger.Info("end session matched",
			"sessionId", session.SessionId,
			"intent", intentName,
			"page", pageName,
			"emitOnly", rules.EmitOnly)
		session.channel.PublishEvent(EventEndSession, getActionEventBody(queryResult, nil))
		metrics.Default.ActionsFired.WithLabelValues("end_session", actionMode(rules.EmitOnly)).Inc()

		if !rules.EmitOnly {
			_ = session.stop(false)
			if err := session.channel.Hangup(); err != nil {
				logger.Error("hangup failed",
					"sessionId", session.SessionId,
					"error", err)
			}
			return true
		}
	}

	matched, target := rules.MatchTransfer(queryResult)
	if !matched {
		return false
	}
	if target == nil {
		logger.Warn("transfer matched but no destination provided",
			"sessionId", session.SessionId,
			"intent", intentName,
			"page", pageName)
		return false
	}

	logger.Info("transfer matched",
		"sessionId", session.SessionId,
		"exten", target.Exten,
		"dialplan", target.Dialplan,
		"context", target.Context,
		"intent", intentName,
		"page", pageName,
		"emitOnly", rules.EmitOnly)
	session.channel.PublishEvent(EventTransfer, getActionEventBody(queryResult, target))
	metrics.Default.ActionsFired.WithLabelValues("transfer", actionMode(rules.EmitOnly)).Inc()

	if rules.EmitOnly {
		return false
	}

	_ = session.stop(false)
	if err := session.channel.Transfer(target.Exten, target.Dialplan, target.Context); err != nil {
		// The call stays connected.
		logger.Error("transfer failed",
			"sessionId", session.SessionId,
			"exten", target.Exten,
			"dialplan", target.Dialplan,
			"context", target.Context,
			"error", err)
	}
	return true
}

func actionMode(emitOnly bool) string {

	if emitOnly {
		return "emit_only"
	}
	return "act"
}

// finishStream finishes the current stream and reports a bad final status,
// or a failed rotation, to the error handler.
func (session *SessionObject) finishStream() {

	session.Lock()
	finalStatus := session.controller.Finish()
	rotateErr := session.controller.RotateError()
	session.Unlock()

	if finalStatus.Code() == codes.OK && rotateErr != nil {
		finalStatus = status.Convert(rotateErr)
	}
	if finalStatus.Code() == codes.OK {
		return
	}

	errorPayload := getErrorPayload(finalStatus)
	getLogger().Error("stream finished with error",
		"sessionId", session.SessionId,
		"code", errorPayload.Code,
		"msg", errorPayload.Message,
		"details", errorPayload.Details)
	metrics.Default.StreamErrors.Inc()

	if session.onError != nil {
		session.onError(session.SessionId, marshalPayload(errorPayload))
	}
}

func (session *SessionObject) emit(kind string, payload []byte) {

	if session.onResponse != nil {
		session.onResponse(session.SessionId, kind, payload)
	}
}
