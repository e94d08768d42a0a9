package models

type IngestDataRequest struct {
	Text string `json:"text"`
}

type QueryTextRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionID,omitempty"`
}

// AskRequest drives the file-bridge flow: the question goes into the
// request mailbox and the answer is rendered into the named vault document.
type AskRequest struct {
	Question string `json:"question"`
	Document string `json:"document"`
}
