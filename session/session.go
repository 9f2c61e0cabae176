package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dfcx-bridge/go-bridge/auth"
	"github.com/dfcx-bridge/go-bridge/connection"
	"github.com/dfcx-bridge/go-bridge/metrics"
)

const DefaultInputSampleRate = 8000

// ClientFactory creates the Sessions client used by one session.
type ClientFactory func(ctx context.Context, address *SessionAddress, credentials string) (SessionsClient, error)

// StartOptions configures a new session.
type StartOptions struct {
	// SessionId names the Dialogflow session; a random one is used if empty.
	SessionId string

	// AgentToken is the colon-delimited agent address, see ParseSessionAddress.
	AgentToken   string
	LanguageCode string

	// Event and Text select the kickoff, see NewKickoff.
	Event string
	Text  string

	InputSampleRate int
	TempDir         string

	KeepaliveTime time.Duration
	MaxMessageMb  int

	OnResponse ResponseHandler
	OnError    ErrorHandler

	// Client, when set, is used instead of creating one and is not closed
	// by Stop.
	Client           SessionsClient
	ClientFactory    ClientFactory
	ResamplerFactory ResamplerFactory
}

// SessionObject is one call attached to a Dialogflow CX conversation.
type SessionObject struct {
	sync.Mutex

	SessionId string
	Address   *SessionAddress

	channel    Channel
	controller *TurnController
	resampler  Resampler
	client     SessionsClient
	ownsClient bool
	tempDir    string

	onResponse ResponseHandler
	onError    ErrorHandler

	sessionContext context.Context
	sessionCancel  context.CancelFunc
	attached       bool
	readerDone     chan struct{}
}

type SessionMapObject struct {
	sync.RWMutex
	OpenSessions map[string]*SessionObject
}

var activeSessionsMap = SessionMapObject{
	OpenSessions: make(map[string]*SessionObject),
}

// GetSession returns the attached session with the given id.
func GetSession(sessionId string) (*SessionObject, bool) {

	activeSessionsMap.RLock()
	defer activeSessionsMap.RUnlock()
	session, ok := activeSessionsMap.OpenSessions[sessionId]
	return session, ok
}

// defaultClientFactory dials the regional endpoint of address.
func defaultClientFactory(keepaliveTime time.Duration, maxMessageMb int) ClientFactory {

	return func(ctx context.Context, address *SessionAddress, credentials string) (SessionsClient, error) {
		newConnection, err := connection.CreateNewConnection(ctx, connection.GrpcConnectionConfig{
			ApiEndpoint:   address.Endpoint(),
			Credentials:   credentials,
			KeepaliveTime: keepaliveTime,
			MaxMessageMb:  maxMessageMb,
		})
		if err != nil {
			return nil, err
		}
		getLogger().Debug("created sessions client",
			"endpoint", address.Endpoint(),
			"credentials", string(newConnection.CredentialSource))
		return newConnection.SessionsClient, nil
	}
}

// Start attaches channel to the agent named by options.AgentToken: it opens
// the stream, writes the first request and starts the response listener.
// On error nothing is left running.
func Start(ctx context.Context, channel Channel, options StartOptions) (session *SessionObject, err error) {

	logger := getLogger()

	defer func() {
		if err != nil {
			metrics.Default.SessionsFailed.Inc()
			logger.Error("unable to start session",
				"sessionId", options.SessionId,
				"error", err)
		}
	}()

	variables := channel.Variables()
	credentials := variableValue(variables, credentialsVariable)
	if !auth.HasDefaultCredentials() && credentials == "" {
		return nil, ErrMissingCredentials
	}

	address, err := ParseSessionAddress(options.AgentToken, options.LanguageCode)
	if err != nil {
		return nil, err
	}

	if options.SessionId == "" {
		options.SessionId = uuid.NewString()
	}
	if options.InputSampleRate == 0 {
		options.InputSampleRate = DefaultInputSampleRate
	}
	if options.ResamplerFactory == nil {
		options.ResamplerFactory = NewLinearResampler
	}
	if options.ClientFactory == nil {
		options.ClientFactory = defaultClientFactory(options.KeepaliveTime, options.MaxMessageMb)
	}

	sessionContext, sessionCancel := context.WithCancel(context.WithoutCancel(ctx))
	session = &SessionObject{
		SessionId:      options.SessionId,
		Address:        address,
		channel:        channel,
		tempDir:        options.TempDir,
		onResponse:     options.OnResponse,
		onError:        options.OnError,
		sessionContext: sessionContext,
		sessionCancel:  sessionCancel,
		readerDone:     make(chan struct{}),
	}

	activeSessionsMap.Lock()
	if _, exists := activeSessionsMap.OpenSessions[session.SessionId]; exists {
		activeSessionsMap.Unlock()
		sessionCancel()
		return nil, ErrSessionExists
	}
	activeSessionsMap.OpenSessions[session.SessionId] = session
	activeSessionsMap.Unlock()

	defer func() {
		if err != nil {
			session.abortStart()
			session = nil
		}
	}()

	session.client = options.Client
	if session.client == nil {
		session.client, err = options.ClientFactory(ctx, address, credentials)
		if err != nil {
			return session, fmt.Errorf("creating sessions client: %w", err)
		}
		session.ownsClient = true
	}

	transport, err := openStreamTransport(sessionContext, session.client)
	if err != nil {
		return session, fmt.Errorf("opening stream: %w", err)
	}

	kickoff := NewKickoff(options.Event, options.Text)
	target := &streamTarget{
		sessionPath:  address.SessionPath(session.SessionId),
		languageCode: address.LanguageCode,
		params:       BuildQueryParameters(kickoff, variables, address.SentimentAnalysis),
		voice:        address.Voice,
	}
	session.controller = newTurnController(target, transport)

	if err = session.controller.StartTurn(kickoff); err != nil {
		return session, err
	}

	session.resampler, err = options.ResamplerFactory(options.InputSampleRate, audioSampleRateHertz)
	if err != nil {
		return session, fmt.Errorf("initializing resampler: %w", err)
	}

	sessionId := session.SessionId
	channel.OnHangup(func() {
		pendingArtifacts.purge(sessionId)
	})

	session.attached = true
	go sessionResponseListener(session)

	metrics.Default.SessionsStarted.Inc()
	metrics.Default.SessionsActive.Inc()
	logger.Info("session started",
		"sessionId", sessionId,
		"session", target.sessionPath,
		"endpoint", address.Endpoint(),
		"event", kickoff.Event,
		"mode", session.controller.State().Mode.String())

	return session, nil
}

// abortStart releases whatever a failed Start built.
func (session *SessionObject) abortStart() {

	if session.controller != nil {
		session.controller.Finish()
	}
	session.sessionCancel()
	if session.resampler != nil {
		session.resampler.Close()
	}
	if session.ownsClient && session.client != nil {
		_ = session.client.Close()
	}

	activeSessionsMap.Lock()
	delete(activeSessionsMap.OpenSessions, session.SessionId)
	activeSessionsMap.Unlock()
}

// Stop ends the conversation and waits for the response listener to exit.
// It must not be called from a ResponseHandler or ErrorHandler.
func (session *SessionObject) Stop() error {

	return session.stop(true)
}

// stop half-closes and finishes the stream under the session lock, then
// releases the lock before waiting so the listener can take it on its way
// out. The listener itself stops without waiting.
func (session *SessionObject) stop(wait bool) error {

	session.Lock()
	if !session.attached {
		session.Unlock()
		return ErrNotAttached
	}
	session.attached = false
	session.controller.Finish()
	session.sessionCancel()
	packets := session.controller.State().PacketsWritten
	session.Unlock()

	if wait {
		<-session.readerDone
	}

	session.Lock()
	session.resampler.Close()
	session.Unlock()

	if session.ownsClient {
		if err := session.client.Close(); err != nil {
			getLogger().Warn("closing sessions client",
				"sessionId", session.SessionId,
				"error", err)
		}
	}

	pendingArtifacts.purge(session.SessionId)

	activeSessionsMap.Lock()
	delete(activeSessionsMap.OpenSessions, session.SessionId)
	activeSessionsMap.Unlock()

	metrics.Default.SessionsActive.Dec()
	getLogger().Info("session stopped",
		"sessionId", session.SessionId,
		"packetsWritten", packets)

	return nil
}

// Attached reports whether the session is still streaming.
func (session *SessionObject) Attached() bool {

	session.Lock()
	defer session.Unlock()
	return session.attached
}

// TurnState returns a snapshot of the turn controller.
func (session *SessionObject) TurnState() TurnState {

	session.Lock()
	defer session.Unlock()
	return session.controller.State()
}

// Done is closed once the response listener has exited.
func (session *SessionObject) Done() <-chan struct{} {

	return session.readerDone
}
