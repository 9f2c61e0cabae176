package session

import (
	"strings"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"
)

const (
	// Both directions use 16-bit linear PCM at 16 kHz.
	audioSampleRateHertz = 16000
	inputAudioEncoding   = cxpb.AudioEncoding_AUDIO_ENCODING_LINEAR_16
	outputAudioEncoding  = cxpb.OutputAudioEncoding_OUTPUT_AUDIO_ENCODING_LINEAR_16
)

// OutputVoiceConfig tunes the synthesized agent voice. Nil numbers and empty
// strings are left out of the request.
type OutputVoiceConfig struct {
	SpeakingRate   *float64
	Pitch          *float64
	VolumeGainDb   *float64
	VoiceName      string
	VoiceGender    string
	EffectsProfile string
}

// IsSet reports whether any field differs from the service defaults.
func (voice OutputVoiceConfig) IsSet() bool {

	return voice.SpeakingRate != nil || voice.Pitch != nil || voice.VolumeGainDb != nil ||
		voice.VoiceName != "" || voice.VoiceGender != "" || voice.EffectsProfile != ""
}

// ssmlGender maps the first letter of gender, case-insensitively.
func ssmlGender(gender string) cxpb.SsmlVoiceGender {

	if gender == "" {
		return cxpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED
	}

	switch strings.ToUpper(gender[:1]) {
	case "F":
		return cxpb.SsmlVoiceGender_SSML_VOICE_GENDER_FEMALE
	case "M":
		return cxpb.SsmlVoiceGender_SSML_VOICE_GENDER_MALE
	case "N":
		return cxpb.SsmlVoiceGender_SSML_VOICE_GENDER_NEUTRAL
	default:
		return cxpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED
	}
}

// getOutputAudioConfig returns the synthesis configuration requested on
// every stream.
func getOutputAudioConfig(voice OutputVoiceConfig) (outputAudioConfig *cxpb.OutputAudioConfig) {

	outputAudioConfig = &cxpb.OutputAudioConfig{
		AudioEncoding:   outputAudioEncoding,
		SampleRateHertz: audioSampleRateHertz,
	}

	if !voice.IsSet() {
		return outputAudioConfig
	}

	synthesizeSpeechConfig := &cxpb.SynthesizeSpeechConfig{}
	if voice.SpeakingRate != nil {
		synthesizeSpeechConfig.SpeakingRate = *voice.SpeakingRate
	}
	if voice.Pitch != nil {
		synthesizeSpeechConfig.Pitch = *voice.Pitch
	}
	if voice.VolumeGainDb != nil {
		synthesizeSpeechConfig.VolumeGainDb = *voice.VolumeGainDb
	}
	if voice.EffectsProfile != "" {
		synthesizeSpeechConfig.EffectsProfileId = []string{voice.EffectsProfile}
	}
	if voice.VoiceName != "" || voice.VoiceGender != "" {
		synthesizeSpeechConfig.Voice = &cxpb.VoiceSelectionParams{
			Name:       voice.VoiceName,
			SsmlGender: ssmlGender(voice.VoiceGender),
		}
	}
	outputAudioConfig.SynthesizeSpeechConfig = synthesizeSpeechConfig

	return outputAudioConfig
}
