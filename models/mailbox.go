package models

// QuestionRecord is the content of the request mailbox file. The slot
// holds only the latest question; every submission overwrites it.
type QuestionRecord struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// ResultRecord is the content of a response file written by the answer
// worker and consumed by the poller.
type ResultRecord struct {
	Question string   `json:"question,omitempty"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
}
