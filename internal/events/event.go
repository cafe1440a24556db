package events

import "encoding/json"

// Kind identifies the type of a deployment progress event.
type Kind string

const (
	KindStart    Kind = "start"
	KindSection  Kind = "section"
	KindCommand  Kind = "command"
	KindOutput   Kind = "output"
	KindPods     Kind = "pods"
	KindPod      Kind = "pod"
	KindInfo     Kind = "info"
	KindLog      Kind = "log"
	KindSuccess  Kind = "success"
	KindError    Kind = "error"
	KindComplete Kind = "complete"
)

// Event is a single progress message relayed to the caller.
type Event struct {
	Kind    Kind   `json:"type"`
	Message string `json:"message,omitempty"`
}

// New builds an event of the given kind.
func New(kind Kind, message string) Event {
	return Event{Kind: kind, Message: message}
}

func Start(msg string) Event   { return New(KindStart, msg) }
func Section(msg string) Event { return New(KindSection, msg) }
func Command(msg string) Event { return New(KindCommand, msg) }
func Output(line string) Event { return New(KindOutput, line) }
func Pods(msg string) Event    { return New(KindPods, msg) }
func Pod(line string) Event    { return New(KindPod, line) }
func Info(msg string) Event    { return New(KindInfo, msg) }
func Log(line string) Event    { return New(KindLog, line) }
func Success(msg string) Event { return New(KindSuccess, msg) }
func Error(msg string) Event   { return New(KindError, msg) }
func Complete() Event          { return Event{Kind: KindComplete} }

// Marshal encodes the event in its wire representation.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
