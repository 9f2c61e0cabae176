package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dfcx-bridge/go-bridge/session"
)

// AgentSettings names a Dialogflow CX agent. Empty optional fields keep the
// service defaults.
type AgentSettings struct {
	ProjectId         string
	AgentId           string
	Environment       string
	Region            string
	SentimentAnalysis bool
}

// GetAgentToken returns the colon-delimited agent token for agent and voice,
// in the form accepted by session.ParseSessionAddress. Trailing empty fields
// are left off.
func (client *SdkClient) GetAgentToken(agent AgentSettings, voice session.OutputVoiceConfig) (token string, err error) {

	if agent.ProjectId == "" {
		return "", errors.New("project id is required")
	}

	fields := []string{
		agent.ProjectId,
		agent.AgentId,
		agent.Environment,
		agent.Region,
		formatVoiceFloat(voice.SpeakingRate),
		formatVoiceFloat(voice.Pitch),
		formatVoiceFloat(voice.VolumeGainDb),
		voice.VoiceName,
		voice.VoiceGender,
		voice.EffectsProfile,
		"",
	}
	if agent.SentimentAnalysis {
		fields[10] = "true"
	}

	for _, field := range fields {
		if strings.Contains(field, ":") {
			return "", fmt.Errorf("token field %q must not contain ':'", field)
		}
	}

	last := len(fields)
	for last > 1 && fields[last-1] == "" {
		last--
	}

	return strings.Join(fields[:last], ":"), nil
}

func formatVoiceFloat(value *float64) string {

	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}
