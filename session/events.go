package session

// Event kinds passed to the ResponseHandler and published on the channel.
const (
	EventIntent         = "dialogflow::intent"
	EventTranscription  = "dialogflow::transcription"
	EventEndOfUtterance = "dialogflow::end_of_utterance"
	EventAudioProvided  = "dialogflow::audio_provided"
	EventError          = "dialogflow::error"
	EventEndSession     = "dialogflow::end_session"
	EventTransfer       = "dialogflow::transfer"
)

// Channel variables consulted by the bridge.
const (
	credentialsVariable = "GOOGLE_APPLICATION_CREDENTIALS"

	channelVariable       = "DIALOGFLOW_CHANNEL"
	defaultParamsVariable = "DIALOGFLOW_DEFAULT_PARAMS"
	paramsVariable        = "DIALOGFLOW_PARAMS"
	passAllVarsVariable   = "DIALOGFLOW_PASS_ALL_CHANNEL_VARS"
	varPrefixesVariable   = "DIALOGFLOW_VAR_PREFIXES"
	bargeInVariable       = "DIALOGFLOW_BARGE_IN"
	autoplayVariable      = "DIALOGFLOW_AUTOPLAY"
	autoplaySyncVariable  = "DIALOGFLOW_AUTOPLAY_SYNC"
	endSessionIntentVar   = "DIALOGFLOW_END_SESSION_INTENT"
	endSessionPageVar     = "DIALOGFLOW_END_SESSION_PAGE"
	transferIntentVar     = "DIALOGFLOW_TRANSFER_INTENT"
	transferPageVar       = "DIALOGFLOW_TRANSFER_PAGE"
	transferExtenVar      = "DIALOGFLOW_TRANSFER_EXTEN"
	transferContextVar    = "DIALOGFLOW_TRANSFER_CONTEXT"
	transferDialplanVar   = "DIALOGFLOW_TRANSFER_DIALPLAN"
	actionsEmitOnlyVar    = "DIALOGFLOW_ACTIONS_EMIT_ONLY"
)
