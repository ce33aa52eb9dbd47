package document

// Document is a unit of plain text extracted from an uploaded file, tagged with
// source metadata. Loaders produce one per file, page or row depending on format.
type Document struct {
	PageContent string
	Metadata    map[string]any
}

// Metadata keys set by the loaders.
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaRow        = "row"
	MetaChunkIndex = "chunk_index"
)

// Source returns the source path recorded in the metadata, or "".
func (d Document) Source() string {
	s, _ := d.Metadata[MetaSource].(string)
	return s
}

// CloneMetadata returns a shallow copy of the metadata map.
func (d Document) CloneMetadata() map[string]any {
	out := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		out[k] = v
	}
	return out
}
