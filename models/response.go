package models

// FallbackAnswer is returned whenever the query flow fails.
const FallbackAnswer = "Sorry, there was an error processing your request."

type QueryRAGResponse struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// NewFallbackResponse builds the body sent when any step of the query flow fails.
func NewFallbackResponse() *QueryRAGResponse {
	return &QueryRAGResponse{
		Response: FallbackAnswer,
		Sources:  []Source{},
	}
}
