package session

import (
	"encoding/json"
	"strings"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const channelParamKey = "channel"

// Kickoff is the first input of a conversation. At most one of Event and
// Text is used; both empty means the conversation opens with caller audio.
// InlineParams carries a JSON object of session parameters.
type Kickoff struct {
	Event        string
	Text         string
	InlineParams string
}

// NewKickoff interprets the event and text start arguments. With an event,
// text holds inline JSON parameters. Without one, text that parses as a JSON
// object is treated as parameters for an audio start.
func NewKickoff(event string, text string) Kickoff {

	event = strings.TrimSpace(event)
	if event != "" {
		return Kickoff{Event: event, InlineParams: text}
	}

	if strings.HasPrefix(text, "{") {
		var probe map[string]any
		if json.Unmarshal([]byte(text), &probe) == nil {
			return Kickoff{InlineParams: text}
		}
	}

	return Kickoff{Text: text}
}

// IsAudio reports whether the kickoff opens with caller audio.
func (kickoff Kickoff) IsAudio() bool {

	return kickoff.Event == "" && kickoff.Text == ""
}

// QueryParameters are the per-call query parameters sent with the first
// request of the conversation. Channel and SentimentAnalysis are the routing
// pair re-applied to every rotated stream.
type QueryParameters struct {
	Channel           string
	SentimentAnalysis bool
	Values            map[string]any
}

// BuildQueryParameters merges parameter sources in increasing priority:
// kickoff inline JSON, the routing channel variable, default params, per-call
// params and, when enabled, the channel variables themselves.
func BuildQueryParameters(kickoff Kickoff, variables Variables, sentimentAnalysis bool) (params *QueryParameters) {

	logger := getLogger()

	params = &QueryParameters{
		SentimentAnalysis: sentimentAnalysis,
		Values:            make(map[string]any),
	}

	if kickoff.InlineParams != "" {
		inline, err := parseParamsJson(kickoff.InlineParams)
		if err != nil {
			logger.Warn("inline params are not valid JSON",
				"params", kickoff.InlineParams,
				"error", err)
		} else {
			params.merge(inline)
			// An event kickoff carries channel as a plain parameter only.
			if channel, ok := inline[channelParamKey].(string); ok && channel != "" && kickoff.Event == "" {
				params.Channel = channel
			}
		}
	}

	if channel := variableValue(variables, channelVariable); channel != "" {
		params.Channel = channel
		params.Values[channelParamKey] = channel
	}

	for _, name := range []string{defaultParamsVariable, paramsVariable} {
		blob := variableValue(variables, name)
		if blob == "" {
			continue
		}
		values, err := parseParamsJson(blob)
		if err != nil {
			logger.Warn("params variable is not valid JSON",
				"variable", name,
				"error", err)
			continue
		}
		params.merge(values)
		if name == paramsVariable {
			if channel, ok := values[channelParamKey].(string); ok && channel != "" {
				params.Channel = channel
			}
		}
	}

	for name, value := range collectChannelVariables(variables) {
		params.Values[name] = value
	}

	return params
}

// parseParamsJson decodes a JSON object, keeping only scalar values.
func parseParamsJson(blob string) (map[string]any, error) {

	var decoded map[string]any
	if err := json.Unmarshal([]byte(blob), &decoded); err != nil {
		return nil, err
	}

	values := make(map[string]any, len(decoded))
	for name, value := range decoded {
		switch value.(type) {
		case bool, float64, string:
			values[name] = value
		}
	}
	return values, nil
}

func (params *QueryParameters) merge(values map[string]any) {

	for name, value := range values {
		params.Values[name] = value
	}
}

// collectChannelVariables returns the channel variables passed through as
// parameters, or nil when pass-through is off. Credentials never leave the
// bridge, whatever the prefix list says.
func collectChannelVariables(variables Variables) map[string]string {

	if variables == nil || !variableIsTrue(variables, passAllVarsVariable) {
		return nil
	}

	var prefixes []string
	for _, prefix := range strings.Split(variableValue(variables, varPrefixesVariable), ",") {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			prefixes = append(prefixes, prefix)
		}
	}

	collected := make(map[string]string)
	for name, value := range variables.All() {
		if name == credentialsVariable {
			continue
		}
		if hasAllowedPrefix(prefixes, name) {
			collected[name] = value
		}
	}
	return collected
}

func hasAllowedPrefix(prefixes []string, name string) bool {

	if len(prefixes) == 0 {
		return true
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// getQueryParams converts the full parameter set for the first request.
func (params *QueryParameters) getQueryParams() *cxpb.QueryParameters {

	if params == nil {
		return nil
	}

	queryParams := params.getRoutingQueryParams()
	if len(params.Values) == 0 {
		return queryParams
	}

	values, err := structpb.NewStruct(params.Values)
	if err != nil {
		getLogger().Warn("dropping query parameters",
			"error", err)
		return queryParams
	}
	if queryParams == nil {
		queryParams = &cxpb.QueryParameters{}
	}
	queryParams.Parameters = values

	return queryParams
}

// getRoutingQueryParams returns only the channel and sentiment settings, or
// nil when neither is set.
func (params *QueryParameters) getRoutingQueryParams() *cxpb.QueryParameters {

	if params == nil || (params.Channel == "" && !params.SentimentAnalysis) {
		return nil
	}

	return &cxpb.QueryParameters{
		Channel:                   params.Channel,
		AnalyzeQueryTextSentiment: params.SentimentAnalysis,
	}
}
