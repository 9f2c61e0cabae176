package session

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultEnvironment = "draft"
	DefaultRegion      = "us"

	defaultEndpointHost = "dialogflow.googleapis.com"
	endpointPort        = "443"
)

// SessionAddress says which Dialogflow CX agent a call talks to, plus the
// per-call output voice tuning carried in the same token.
type SessionAddress struct {
	ProjectId         string
	AgentId           string
	Environment       string
	Region            string
	LanguageCode      string
	Voice             OutputVoiceConfig
	SentimentAnalysis bool
}

// ParseSessionAddress builds a SessionAddress from a colon-delimited token:
//
//	project:agent:environment:region:speakingRate:pitch:volume:voiceName:voiceGender:effects:sentiment
//
// Only the project is required; empty fields keep their defaults.
func ParseSessionAddress(token string, languageCode string) (address *SessionAddress, err error) {

	address = &SessionAddress{
		Environment:  DefaultEnvironment,
		Region:       DefaultRegion,
		LanguageCode: strings.TrimSpace(languageCode),
	}

	for idx, field := range strings.Split(token, ":") {
		if field == "" {
			continue
		}

		switch idx {
		case 0:
			address.ProjectId = field
		case 1:
			address.AgentId = field
		case 2:
			address.Environment = field
		case 3:
			address.Region = field
		case 4:
			address.Voice.SpeakingRate, err = parseVoiceFloat("speaking rate", field)
		case 5:
			address.Voice.Pitch, err = parseVoiceFloat("pitch", field)
		case 6:
			address.Voice.VolumeGainDb, err = parseVoiceFloat("volume gain", field)
		case 7:
			address.Voice.VoiceName = field
		case 8:
			address.Voice.VoiceGender = field
		case 9:
			address.Voice.EffectsProfile = field
		case 10:
			address.SentimentAnalysis = field == "true"
		}
		if err != nil {
			return nil, err
		}
	}

	if address.ProjectId == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidAddress)
	}
	if address.LanguageCode == "" {
		return nil, fmt.Errorf("%w: language code is required", ErrInvalidAddress)
	}

	return address, nil
}

func parseVoiceFloat(name string, field string) (*float64, error) {

	value, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q is not a number", ErrInvalidAddress, name, field)
	}
	return &value, nil
}

// Endpoint returns the host:port of the regional Sessions service.
func (address *SessionAddress) Endpoint() string {

	if address.Region == "" || address.Region == DefaultRegion {
		return defaultEndpointHost + ":" + endpointPort
	}
	return address.Region + "-" + defaultEndpointHost + ":" + endpointPort
}

// SessionPath returns the resource name of the conversation for sessionId.
// The draft environment is the service default and is left out of the path.
func (address *SessionAddress) SessionPath(sessionId string) string {

	path := fmt.Sprintf("projects/%s/locations/%s/agents/%s", address.ProjectId, address.Region, address.AgentId)
	if address.Environment != "" && address.Environment != DefaultEnvironment {
		path += "/environments/" + address.Environment
	}
	return path + "/sessions/" + sessionId
}
