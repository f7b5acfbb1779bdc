// Package orchestrator implements [pulse.Opener] for the analysis
// orchestrator's chat endpoint.
//
// It POSTs a question to the orchestrator and reads the response as a
// server-sent event stream, exposing it through the pull-based
// [pulse.Stream] interface. Frame reassembly is delegated to [sse.Decoder],
// so events survive arbitrary transport chunking.
package orchestrator

const (
	defaultBaseURL = "http://localhost:8080"
	chatPath       = "/api/chat"
)

// apiRequest is the JSON body sent to the chat endpoint.
type apiRequest struct {
	SessionID string `json:"sessionId"`
	DatasetID string `json:"datasetId,omitempty"`
	Question  string `json:"question"`
}

// apiErrorResponse is the JSON body returned on non-2xx HTTP responses.
type apiErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
