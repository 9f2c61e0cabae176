package session

import (
	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"
)

// streamTarget holds what every stream of one conversation shares.
type streamTarget struct {
	sessionPath  string
	languageCode string
	params       *QueryParameters
	voice        OutputVoiceConfig
}

// getInputAudioConfig returns the single-utterance audio header.
func getInputAudioConfig() *cxpb.InputAudioConfig {

	return &cxpb.InputAudioConfig{
		AudioEncoding:   inputAudioEncoding,
		SampleRateHertz: audioSampleRateHertz,
		SingleUtterance: true,
	}
}

// getEventRequest returns the opening request of an event kickoff.
func getEventRequest(target *streamTarget, event string) (eventRequest *cxpb.StreamingDetectIntentRequest) {

	eventRequest = &cxpb.StreamingDetectIntentRequest{
		Session:     target.sessionPath,
		QueryParams: target.params.getQueryParams(),
		QueryInput: &cxpb.QueryInput{
			Input: &cxpb.QueryInput_Event{
				Event: &cxpb.EventInput{Event: event},
			},
			LanguageCode: target.languageCode,
		},
		OutputAudioConfig: getOutputAudioConfig(target.voice),
	}

	return eventRequest
}

// getTextRequest returns the opening request of a text kickoff.
func getTextRequest(target *streamTarget, text string) (textRequest *cxpb.StreamingDetectIntentRequest) {

	textRequest = &cxpb.StreamingDetectIntentRequest{
		Session:     target.sessionPath,
		QueryParams: target.params.getQueryParams(),
		QueryInput: &cxpb.QueryInput{
			Input: &cxpb.QueryInput_Text{
				Text: &cxpb.TextInput{Text: text},
			},
			LanguageCode: target.languageCode,
		},
		OutputAudioConfig: getOutputAudioConfig(target.voice),
	}

	return textRequest
}

// getAudioConfigRequest returns a request that opens an audio turn without
// any audio. The first stream sends the full parameter set; rotated streams
// only re-apply the routing pair.
func getAudioConfigRequest(target *streamTarget, fullParams bool) (configRequest *cxpb.StreamingDetectIntentRequest) {

	queryParams := target.params.getRoutingQueryParams()
	if fullParams {
		queryParams = target.params.getQueryParams()
	}

	configRequest = &cxpb.StreamingDetectIntentRequest{
		Session:     target.sessionPath,
		QueryParams: queryParams,
		QueryInput: &cxpb.QueryInput{
			Input: &cxpb.QueryInput_Audio{
				Audio: &cxpb.AudioInput{Config: getInputAudioConfig()},
			},
			LanguageCode: target.languageCode,
		},
		OutputAudioConfig: getOutputAudioConfig(target.voice),
	}

	return configRequest
}

// getAudioRequest returns a request carrying caller audio, with a fresh
// audio header when withConfig is set.
func getAudioRequest(target *streamTarget, audio []byte, withConfig bool) (audioRequest *cxpb.StreamingDetectIntentRequest) {

	audioInput := &cxpb.AudioInput{Audio: audio}
	if withConfig {
		audioInput.Config = getInputAudioConfig()
	}

	audioRequest = &cxpb.StreamingDetectIntentRequest{
		QueryInput: &cxpb.QueryInput{
			Input:        &cxpb.QueryInput_Audio{Audio: audioInput},
			LanguageCode: target.languageCode,
		},
	}

	return audioRequest
}
