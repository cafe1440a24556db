package profile

import (
	"encoding/json"
	"fmt"
	"os"
)

// HelpResolver loads display help content from a JSON file on every call.
type HelpResolver struct {
	path       string
	onFallback func(error)
}

// NewHelpResolver builds a HelpResolver for path.
func NewHelpResolver(path string, onFallback func(error)) *HelpResolver {
	return &HelpResolver{path: path, onFallback: onFallback}
}

// Load returns the help document, or a built-in guide when the file is unusable.
func (h *HelpResolver) Load() json.RawMessage {
	data, err := os.ReadFile(h.path)
	if err == nil {
		if json.Valid(data) {
			return json.RawMessage(data)
		}
		err = fmt.Errorf("help content %s is not valid JSON", h.path)
	}
	if h.onFallback != nil {
		h.onFallback(err)
	}
	return defaultHelp
}

var defaultHelp = json.RawMessage(`{"title":"Deployment Guide","sections":[{"title":"Getting Started","content":"Enter your API key and select a deployment type to begin."}]}`)
