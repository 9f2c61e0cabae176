package session

import (
	"strings"

	"cloud.google.com/go/dialogflow/cx/apiv3/cxpb"
)

const (
	DefaultEndSessionIntent = "END SESSION"
	DefaultTransferIntent   = "TRANSFER TO HUMAN"
	DefaultTransferContext  = "default"
	DefaultTransferDialplan = "XML"
)

// transferExtensionKeys are checked in order; the first non-empty string wins.
var transferExtensionKeys = []string{"transfer_to", "transfer_target", "destination", "exten"}

// ActionRules configures which query results end or transfer the call.
type ActionRules struct {
	EndSessionIntent string
	EndSessionPage   string
	TransferIntent   string
	TransferPage     string
	TransferExten    string
	TransferContext  string
	TransferDialplan string
	EmitOnly         bool
}

// TransferTarget is a resolved transfer destination.
type TransferTarget struct {
	Exten    string `json:"exten"`
	Context  string `json:"context"`
	Dialplan string `json:"dialplan"`
}

// ActionEventBody is published with end-session and transfer events.
type ActionEventBody struct {
	IntentDisplayName string `json:"intent_display_name"`
	PageDisplayName   string `json:"page_display_name,omitempty"`
	*TransferTarget
}

// LoadActionRules reads the action configuration from channel variables.
func LoadActionRules(variables Variables) ActionRules {

	rules := ActionRules{
		EndSessionIntent: variableValue(variables, endSessionIntentVar),
		EndSessionPage:   variableValue(variables, endSessionPageVar),
		TransferIntent:   variableValue(variables, transferIntentVar),
		TransferPage:     variableValue(variables, transferPageVar),
		TransferExten:    variableValue(variables, transferExtenVar),
		TransferContext:  variableValue(variables, transferContextVar),
		TransferDialplan: variableValue(variables, transferDialplanVar),
		EmitOnly:         variableIsTrue(variables, actionsEmitOnlyVar),
	}

	if rules.EndSessionIntent == "" {
		rules.EndSessionIntent = DefaultEndSessionIntent
	}
	if rules.TransferIntent == "" {
		rules.TransferIntent = DefaultTransferIntent
	}

	return rules
}

// displayNames returns the matched intent and current page display names.
func displayNames(queryResult *cxpb.QueryResult) (intentName string, pageName string) {

	return matchedIntent(queryResult).GetDisplayName(), queryResult.GetCurrentPage().GetDisplayName()
}

// matchRule applies one page rule and one intent rule. A configured page
// that matches wins; otherwise the intent must be present and match.
func matchRule(queryResult *cxpb.QueryResult, pageRule string, intentRule string) bool {

	intentName, pageName := displayNames(queryResult)

	if pageRule != "" && pageName != "" && strings.EqualFold(pageName, pageRule) {
		return true
	}
	return intentRule != "" && intentName != "" && strings.EqualFold(intentName, intentRule)
}

// MatchEndSession reports whether queryResult should end the call.
func (rules ActionRules) MatchEndSession(queryResult *cxpb.QueryResult) bool {

	if queryResult == nil {
		return false
	}
	return matchRule(queryResult, rules.EndSessionPage, rules.EndSessionIntent)
}

// MatchTransfer reports whether queryResult asks for a transfer and where
// to. A match with no resolvable extension returns a nil target.
func (rules ActionRules) MatchTransfer(queryResult *cxpb.QueryResult) (matched bool, target *TransferTarget) {

	if queryResult == nil || !matchRule(queryResult, rules.TransferPage, rules.TransferIntent) {
		return false, nil
	}

	parameters := queryResult.GetParameters().GetFields()
	stringParam := func(key string) string {
		value, ok := parameters[key]
		if !ok {
			return ""
		}
		return value.GetStringValue()
	}

	target = &TransferTarget{}
	for _, key := range transferExtensionKeys {
		if exten := stringParam(key); exten != "" {
			target.Exten = exten
			break
		}
	}
	if target.Exten == "" {
		target.Exten = rules.TransferExten
	}
	if target.Exten == "" {
		return true, nil
	}

	target.Context = firstNonEmpty(stringParam("context"), rules.TransferContext, DefaultTransferContext)
	target.Dialplan = firstNonEmpty(stringParam("dialplan"), rules.TransferDialplan, DefaultTransferDialplan)

	return true, target
}

func firstNonEmpty(values ...string) string {

	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// getActionEventBody builds the body published with an action event.
func getActionEventBody(queryResult *cxpb.QueryResult, target *TransferTarget) []byte {

	intentName, pageName := displayNames(queryResult)
	return marshalPayload(&ActionEventBody{
		IntentDisplayName: intentName,
		PageDisplayName:   pageName,
		TransferTarget:    target,
	})
}
