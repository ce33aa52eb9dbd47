// Package mcp exposes the chatbot as MCP tools.
package mcp

// IngestDocumentInput defines the input parameters for the ingest_document tool.
type IngestDocumentInput struct {
	// Path is a local file readable by the server process.
	Path string `json:"path" jsonschema:"required,description=Path of a .txt .doc .pdf or .csv file to index. Replaces the previously indexed document."`
}

// IngestDocumentOutput reports what was indexed.
type IngestDocumentOutput struct {
	// SavedPath is where the upload was copied in the documents directory.
	SavedPath string `json:"saved_path"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	// DurationMS is the wall time of the whole ingestion.
	DurationMS int64 `json:"duration_ms"`
}

// AskDocumentInput defines the input parameters for the ask_document tool.
type AskDocumentInput struct {
	Query string `json:"query" jsonschema:"required,description=Question about the indexed document"`
}

// AskDocumentOutput contains the model's answer.
type AskDocumentOutput struct {
	Result string `json:"result"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput describes the vector index.
type StatusOutput struct {
	Index string `json:"index"`
	// State is one of absent, empty or populated.
	State string `json:"state"`
}
