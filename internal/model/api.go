package model

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
}

type TranscriptRequest struct {
	VideoID            string `json:"videoId"`
	Language           string `json:"language,omitempty"`
	Proxy              string `json:"proxy,omitempty"`
	PreserveFormatting bool   `json:"preserveFormatting,omitempty"`
}

type TranscriptSegment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

type TranscriptResponse struct {
	Transcript       []TranscriptSegment `json:"transcript"`
	Language         string              `json:"language"`
	IsGenerated      bool                `json:"is_generated"`
	Translated       bool                `json:"translated"`
	OriginalLanguage string              `json:"original_language,omitempty"`
}
