// Package httpx renders API responses. Errors follow RFC7807 problem
// details with buildledger problem-type URIs so clients can switch on
// the type field instead of parsing titles.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

const problemTypeBase = "https://buildledger.dev/problems/"

// ProblemDetail is the RFC7807 body carried by every error response.
type ProblemDetail struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem response. The type URI is derived
// from the title and the chi request id is stamped when one is present.
func Problem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	pd := ProblemDetail{
		Type:   problemTypeBase + slugify(title),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	if r != nil {
		pd.RequestID = middleware.GetReqID(r.Context())
	}
	JSON(w, status, pd)
}

func slugify(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

// DecodeJSON strictly decodes the request body into target; unknown
// fields are rejected so client typos fail loudly instead of being
// silently dropped.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
