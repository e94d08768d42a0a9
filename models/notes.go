package models

// Note is a single indexed chunk retrieved from the vector collection.
type Note struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// GetAllNotesResponse is the body of the GET /notes endpoint.
type GetAllNotesResponse struct {
	Count int    `json:"count"`
	Notes []Note `json:"notes"`
}

// SourceDocument is a retrieved vault chunk with its origin metadata
// (source_file, relative_path, file_name, chunk_num).
type SourceDocument struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
