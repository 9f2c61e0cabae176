package client

import (
	"context"
	"errors"
	"time"

	"github.com/dfcx-bridge/go-bridge/auth"
	"github.com/dfcx-bridge/go-bridge/config"
	"github.com/dfcx-bridge/go-bridge/session"
)

// SdkClient represents a client object with knowledge of the process
// configuration. It is primarily used to start session objects with the
// configured defaults.
type SdkClient struct {
	Config *config.ConfigValues

	// ClientFactory, when set, replaces the default Dialogflow dialer for
	// every session started by this client.
	ClientFactory session.ClientFactory
}

// SessionSettings holds the per-call values used to start a session. Empty
// fields fall back to the client configuration.
type SessionSettings struct {
	SessionId       string
	AgentToken      string
	LanguageCode    string
	Event           string
	Text            string
	InputSampleRate int

	OnResponse session.ResponseHandler
	OnError    session.ErrorHandler
}

// CreateSdkClient attempts to create a client object with the provided
// configuration, which is validated first.
func CreateSdkClient(configValues *config.ConfigValues) (client *SdkClient, err error) {

	if configValues == nil {
		return nil, errors.New("missing configuration")
	}

	if err = configValues.Validate(); err != nil {
		return nil, err
	}

	client = &SdkClient{
		Config: configValues,
	}

	return client, nil
}

// NewSession attempts to start a new session on channel. On success, it will
// return the new session object, already streaming.
func (client *SdkClient) NewSession(ctx context.Context, channel session.Channel, settings SessionSettings) (
	newSession *session.SessionObject, err error) {

	newSession, err = session.Start(ctx, channel, client.GetStartOptions(settings))

	return newSession, err
}

// GetStartOptions returns the session.StartOptions for settings, filling
// empty values from the configuration.
func (client *SdkClient) GetStartOptions(settings SessionSettings) (startOptions session.StartOptions) {

	startOptions = session.StartOptions{
		SessionId:       settings.SessionId,
		AgentToken:      settings.AgentToken,
		LanguageCode:    settings.LanguageCode,
		Event:           settings.Event,
		Text:            settings.Text,
		InputSampleRate: settings.InputSampleRate,
		TempDir:         client.Config.TempDir,
		KeepaliveTime:   time.Duration(client.Config.KeepaliveMinutes) * time.Minute,
		MaxMessageMb:    client.Config.MaxMessageMb,
		OnResponse:      settings.OnResponse,
		OnError:         settings.OnError,
		ClientFactory:   client.ClientFactory,
	}

	if startOptions.AgentToken == "" {
		startOptions.AgentToken = client.Config.AgentToken
	}
	if startOptions.LanguageCode == "" {
		startOptions.LanguageCode = client.Config.DefaultLanguage
	}
	if startOptions.InputSampleRate == 0 {
		startOptions.InputSampleRate = client.Config.InputSampleRate
	}

	return startOptions
}

// DefaultVariables returns the channel variables implied by the
// configuration. Hosts apply them beneath the variables of each call.
func (client *SdkClient) DefaultVariables() map[string]string {

	variables := make(map[string]string)
	if client.Config.Credentials != "" {
		variables[auth.CredentialsEnvVar] = client.Config.Credentials
	}
	return variables
}

// PlaybackTimeout bounds how long synchronous playback may wait for the
// host. Zero means no limit.
func (client *SdkClient) PlaybackTimeout() time.Duration {

	return time.Duration(client.Config.PlaybackTimeoutSeconds) * time.Second
}
