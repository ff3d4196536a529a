package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// ProblemDetails is the RFC 7807 problem document every API error
// renders to. Extensions carry the machine-readable members
// (error_code, trace_id, validation details) that land as top-level
// JSON fields next to the standard ones.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// NewProblemDetails builds a problem document with an empty extension
// set ready for WithExtension chaining.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Status:     status,
		Type:       problemType,
		Title:      title,
		Detail:     detail,
		Instance:   instance,
		Extensions: map[string]interface{}{},
	}
}

// WithExtension attaches a machine-readable member and returns the
// document for chaining.
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = map[string]interface{}{}
	}
	pd.Extensions[key] = value
	return pd
}

// Render sets the response status for go-chi/render.
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens Extensions into the top-level object. Extension
// keys never shadow the standard members.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(pd.Extensions)+5)
	for k, v := range pd.Extensions {
		doc[k] = v
	}

	doc["type"] = pd.Type
	doc["title"] = pd.Title
	doc["status"] = pd.Status
	if pd.Detail != "" {
		doc["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		doc["instance"] = pd.Instance
	}

	return json.Marshal(doc)
}
