package models

// ConversionResult is returned to the client once a GIF has been written.
// The field names match what the upload page reads.
type ConversionResult struct {
	Filename  string `json:"filename" msgpack:"filename"`
	FileSize  string `json:"file_size" msgpack:"file_size"`
	SizeBytes int64  `json:"size_bytes" msgpack:"size_bytes"`
	FPS       int    `json:"fps" msgpack:"fps"`
	Width     int    `json:"width" msgpack:"width"`
}
