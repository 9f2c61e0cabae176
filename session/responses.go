package session

import (
	"encoding/json"
	"strings"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

// ResponsePayload is the JSON body delivered with every classified event.
type ResponsePayload struct {
	RecognitionResult       *RecognitionResultPayload `json:"recognition_result,omitempty"`
	ResponseId              string                    `json:"response_id,omitempty"`
	QueryResult             *QueryResultPayload       `json:"query_result,omitempty"`
	OutputAudioConfig       *OutputAudioPayload       `json:"output_audio_config,omitempty"`
	SentimentAnalysisResult *SentimentPayload         `json:"sentiment_analysis_result,omitempty"`
}

type RecognitionResultPayload struct {
	Transcript  string `json:"transcript"`
	IsFinal     bool   `json:"is_final"`
	MessageType string `json:"message_type"`
}

type NamedPayload struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type QueryResultPayload struct {
	Intent       *NamedPayload  `json:"intent,omitempty"`
	LanguageCode string         `json:"language_code"`
	CurrentPage  *NamedPayload  `json:"current_page,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

type OutputAudioPayload struct {
	AudioEncoding   string `json:"audio_encoding"`
	SampleRateHertz int32  `json:"sample_rate_hertz"`
}

type SentimentPayload struct {
	Score     float32 `json:"score"`
	Magnitude float32 `json:"magnitude"`
}

// ErrorPayload is delivered to the ErrorHandler when a stream ends badly.
type ErrorPayload struct {
	Message string `json:"msg"`
	Code    int    `json:"code"`
	Details string `json:"details"`
}

// AudioProvidedPayload announces a synthesized audio file.
type AudioProvidedPayload struct {
	Path string `json:"path"`
}

// classifyResponse returns the event kind of response, or "" when it
// carries neither a recognition result nor a detect intent response.
func classifyResponse(response *cxpb.StreamingDetectIntentResponse) string {

	if response.GetDetectIntentResponse() != nil {
		return EventIntent
	}

	recognitionResult := response.GetRecognitionResult()
	if recognitionResult == nil {
		return ""
	}
	if recognitionResult.GetMessageType() == cxpb.StreamingRecognitionResult_END_OF_SINGLE_UTTERANCE {
		return EventEndOfUtterance
	}
	return EventTranscription
}

// matchedIntent prefers the match intent over the deprecated intent field.
func matchedIntent(queryResult *cxpb.QueryResult) *cxpb.Intent {

	if intent := queryResult.GetMatch().GetIntent(); intent != nil {
		return intent
	}
	return queryResult.GetIntent() //nolint:staticcheck // older agents only fill the deprecated field
}

// getResponsePayload converts response into the event payload.
func getResponsePayload(response *cxpb.StreamingDetectIntentResponse) (payload *ResponsePayload) {

	payload = &ResponsePayload{}

	if recognitionResult := response.GetRecognitionResult(); recognitionResult != nil {
		payload.RecognitionResult = &RecognitionResultPayload{
			Transcript:  recognitionResult.GetTranscript(),
			IsFinal:     recognitionResult.GetIsFinal(),
			MessageType: recognitionResult.GetMessageType().String(),
		}
	}

	detectIntentResponse := response.GetDetectIntentResponse()
	if detectIntentResponse == nil {
		return payload
	}
	payload.ResponseId = detectIntentResponse.GetResponseId()

	if queryResult := detectIntentResponse.GetQueryResult(); queryResult != nil {
		queryResultPayload := &QueryResultPayload{
			LanguageCode: queryResult.GetLanguageCode(),
		}
		if intent := matchedIntent(queryResult); intent != nil {
			queryResultPayload.Intent = &NamedPayload{Name: intent.GetName(), DisplayName: intent.GetDisplayName()}
		}
		if page := queryResult.GetCurrentPage(); page != nil {
			queryResultPayload.CurrentPage = &NamedPayload{Name: page.GetName(), DisplayName: page.GetDisplayName()}
		}
		if parameters := queryResult.GetParameters(); parameters != nil {
			queryResultPayload.Parameters = parameters.AsMap()
		}
		if sentiment := queryResult.GetSentimentAnalysisResult(); sentiment != nil {
			payload.SentimentAnalysisResult = &SentimentPayload{
				Score:     sentiment.GetScore(),
				Magnitude: sentiment.GetMagnitude(),
			}
		}
		payload.QueryResult = queryResultPayload
	}

	if outputAudioConfig := detectIntentResponse.GetOutputAudioConfig(); outputAudioConfig != nil {
		payload.OutputAudioConfig = &OutputAudioPayload{
			AudioEncoding:   outputAudioConfig.GetAudioEncoding().String(),
			SampleRateHertz: outputAudioConfig.GetSampleRateHertz(),
		}
	}

	return payload
}

// getErrorPayload describes a final stream status.
func getErrorPayload(streamStatus *status.Status) *ErrorPayload {

	var statusProto *rpcstatus.Status = streamStatus.Proto()

	details := make([]string, 0, len(statusProto.GetDetails()))
	for _, detail := range statusProto.GetDetails() {
		encoded, err := protojson.Marshal(detail)
		if err != nil {
			details = append(details, detail.GetTypeUrl())
			continue
		}
		details = append(details, string(encoded))
	}

	return &ErrorPayload{
		Message: streamStatus.Message(),
		Code:    int(streamStatus.Code()),
		Details: strings.Join(details, "; "),
	}
}

func marshalPayload(payload any) []byte {

	encoded, err := json.Marshal(payload)
	if err != nil {
		getLogger().Error("unable to encode event payload",
			"error", err)
		return []byte("{}")
	}
	return encoded
}
