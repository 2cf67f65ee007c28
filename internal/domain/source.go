package domain

// SourceType classifies an uploaded file.
type SourceType string

const (
	SourceTypeTest     SourceType = "test"
	SourceTypeResource SourceType = "resource"
)

// Source is one uploaded file, identified by its relative path.
type Source struct {
	Path string     `json:"path"`
	Type SourceType `json:"type"`
}
