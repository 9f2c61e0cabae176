package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dfcx-bridge/go-bridge/logging"
	"github.com/dfcx-bridge/go-bridge/session"
)

// GetVoiceSettings returns a session.OutputVoiceConfig, populated with the
// specified parameters. Numeric values are given as strings so empty means
// unset; out of range numbers are an error.
func (client *SdkClient) GetVoiceSettings(
	voiceName string,
	voiceGender string,
	speakingRate string,
	pitch string,
	volumeGainDb string,
	effectsProfile string,
) (voiceSettings session.OutputVoiceConfig, err error) {

	logger, _ := logging.GetLogger()

	if voiceName != "" {
		voiceSettings.VoiceName = voiceName
	} else {
		// Only assign gender if the voice is not specified.
		switch strings.ToLower(voiceGender) {
		case "":
		case "male", "female", "neutral":
			voiceSettings.VoiceGender = strings.ToLower(voiceGender)
		default:
			// Some unsupported value. Warn, but do not return an error.
			logger.Warn("invalid voice gender (should be \"neutral\", \"male\", or \"female\")",
				"voiceGender", voiceGender)
		}
	}

	if voiceSettings.SpeakingRate, err = parseBoundedFloat("speaking rate", speakingRate, 0.25, 4.0); err != nil {
		return voiceSettings, err
	}
	if voiceSettings.Pitch, err = parseBoundedFloat("pitch", pitch, -20.0, 20.0); err != nil {
		return voiceSettings, err
	}
	if voiceSettings.VolumeGainDb, err = parseBoundedFloat("volume gain", volumeGainDb, -96.0, 16.0); err != nil {
		return voiceSettings, err
	}

	voiceSettings.EffectsProfile = effectsProfile

	return voiceSettings, nil
}

func parseBoundedFloat(name string, value string, minimum float64, maximum float64) (*float64, error) {

	if value == "" {
		return nil, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("%s %q is not a number", name, value)
	}
	if parsed < minimum || parsed > maximum {
		return nil, fmt.Errorf("%s %v is outside [%v, %v]", name, parsed, minimum, maximum)
	}
	return &parsed, nil
}
