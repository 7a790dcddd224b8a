// Package domain contains the core business entities and types.
package domain

// Thumbnail describes one preview image of a video.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  uint   `json:"width,omitempty"`
	Height uint   `json:"height,omitempty"`
}

// ProgressiveFormat is a single stream carrying both audio and video in an mp4 container.
type ProgressiveFormat struct {
	FormatID        string `json:"formatId"`
	QualityLabel    string `json:"qualityLabel"`
	Container       string `json:"container"`
	ApproxSizeBytes *int64 `json:"approxSizeBytes"`
	Bitrate         *int   `json:"bitrate"`
}

// AudioFormat is an audio-only stream.
type AudioFormat struct {
	FormatID       string `json:"formatId"`
	MimeType       string `json:"mimeType"`
	AverageBitrate int    `json:"averageBitrate"`
	AudioCodec     string `json:"audioCodec"`
}

// VideoMetadata is the client-facing view of a resolved video.
// Values are immutable once built; the cache hands out shared pointers.
type VideoMetadata struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Author             string              `json:"author,omitempty"`
	LengthSeconds      int                 `json:"lengthSeconds"`
	Thumbnails         []Thumbnail         `json:"thumbnails"`
	SourceURL          string              `json:"sourceUrl"`
	ProgressiveFormats []ProgressiveFormat `json:"progressiveFormats"`
	AudioFormats       []AudioFormat       `json:"audioFormats"`
}

// DownloadRequest represents one download call. It lives for a single HTTP exchange.
type DownloadRequest struct {
	SourceURL    string
	FormatID     string // optional, mp4 only
	AudioBitrate string // optional raw "abr" query value, mp3 only
}

// HealthResponse represents the response for a health check.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
