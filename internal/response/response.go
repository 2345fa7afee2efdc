package response

import (
	"encoding/json"
	"log"
	"net/http"
)

// Resp is the uniform envelope returned at the service boundary. Error is
// nil on success regardless of the status code value; StatusCode is carried
// out-of-band for the HTTP layer.
type Resp struct {
	Error      *string `json:"error"`
	Message    string  `json:"message"`
	Data       any     `json:"data"`
	StatusCode int     `json:"-"`
}

// OK builds a success envelope.
func OK(status int, message string, data any) *Resp {
	return &Resp{
		Message:    message,
		Data:       data,
		StatusCode: status,
	}
}

// Failure builds a business-rule failure envelope.
func Failure(status int, errLabel, message string, data any) *Resp {
	return &Resp{
		Error:      &errLabel,
		Message:    message,
		Data:       data,
		StatusCode: status,
	}
}

// Failed reports whether the envelope carries a business failure.
func (r *Resp) Failed() bool {
	return r.Error != nil
}

// Write serializes the envelope to the response writer.
func (r *Resp) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.StatusCode)
	if err := json.NewEncoder(w).Encode(r); err != nil {
		log.Printf("response: encode envelope: %v", err)
	}
}

// WriteError sends a bare error envelope, used for transport-level failures
// (bad JSON, missing auth) that never reach a service.
func WriteError(w http.ResponseWriter, status int, errLabel, message string) {
	Failure(status, errLabel, message, nil).Write(w)
}

// WriteInternal sends the generic internal-error envelope for store and
// connectivity failures.
func WriteInternal(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "Internal Error", "Something went wrong, please try again later.")
}
