package models

import "time"

// FileKind distinguishes uploaded sources from generated GIFs.
type FileKind string

const (
	FileKindUpload FileKind = "upload"
	FileKindOutput FileKind = "output"
)

// FileInfo represents metadata about a file managed by the store.
type FileInfo struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"name" msgpack:"name"` // name on disk
	Original  string    `json:"original,omitempty" msgpack:"original,omitempty"`
	Size      int64     `json:"size" msgpack:"size"`
	Kind      FileKind  `json:"kind" msgpack:"kind"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
}
