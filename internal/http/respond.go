package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/splax/deploystream/internal/service/deploy"
)

// errorBody is the payload of every failed response. Output is set only for
// failed deployment steps, where it may legitimately be empty.
type errorBody struct {
	Error  string  `json:"error"`
	Output *string `json:"output,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDeployError maps a sync deployment failure to its status and message.
func writeDeployError(w http.ResponseWriter, err error, timeoutMessage string) {
	var stepErr *deploy.StepError
	switch {
	case errors.Is(err, deploy.ErrCredentialRequired):
		writeError(w, http.StatusBadRequest, deploy.InputMessage(err))
	case errors.Is(err, deploy.ErrNoDeployment):
		writeError(w, http.StatusInternalServerError, deploy.InputMessage(err))
	case errors.Is(err, deploy.ErrDeployTimeout):
		writeError(w, http.StatusInternalServerError, timeoutMessage)
	case errors.As(err, &stepErr):
		output := stepErr.Output
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: stepErr.Error(), Output: &output})
	default:
		writeError(w, http.StatusInternalServerError, "Deployment error: "+err.Error())
	}
}
