package models

type QueryRAGResponse struct {
	Answer     string           `json:"answer"`
	SourceDocs []SourceDocument `json:"source_docs,omitempty"`
	Error      string           `json:"error,omitempty"`
	SessionID  string           `json:"sessionID"`
}

// AskResponse acknowledges a bridge submission. The answer arrives later
// inside the target document, not in this response.
type AskResponse struct {
	TicketID string `json:"ticketID"`
	Document string `json:"document"`
	Message  string `json:"message"`
}
