package web

import (
	"encoding/json"
	"html/template"
	"net/url"
	"strconv"
)

const (
	liveConnectPath  = "/live/connect"
	liveLocationPath = "/live/location"
	liveNavigatePath = "/live/navigate"
	liveActionPath   = "/live/action/"

	// DatastarScript is the client bundle loaded by the shell.
	DatastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"
)

// shellSignalState is the client-side signal set the shell starts with.
// Inputs bind to topic, query and answer; session and hash travel with every
// live request.
type shellSignalState struct {
	Session string `json:"session"`
	Hash    string `json:"hash"`
	Topic   string `json:"topic"`
	Query   string `json:"query"`
	Answer  string `json:"answer"`
}

func shellSignalsJSON(sessionID string) string {
	return marshalSignals(shellSignalState{Session: sessionID})
}

func marshalSignals[T interface{}](value T) string {
	payload, err := json.Marshal(value)
	if err != nil {
		return "{}"
	}

	return string(payload)
}

func connectAction() template.JS {
	return template.JS("$hash = window.location.hash; @get('" + liveConnectPath + "', {openWhenHidden: true})")
}

func hashChangeAction() template.JS {
	return template.JS("$hash = window.location.hash; @get('" + liveLocationPath + "')")
}

func navigateAction(key string) template.JS {
	return template.JS("@get('" + liveNavigatePath + "?to=" + url.QueryEscape(key) + "')")
}

func postAction(name string) template.JS {
	return template.JS("@post('" + liveActionPath + url.PathEscape(name) + "')")
}

func chooseTopicAction(topic string) template.JS {
	return template.JS("$topic = " + strconv.Quote(topic) + "; " + string(postAction(ActionChooseTopic)))
}
