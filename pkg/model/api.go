package model

import "time"

// GenerateRequest is the body of POST /generate
type GenerateRequest struct {
	Phrase string `json:"phrase"`
}

// GenerateResponse is the 200 body of POST /generate
type GenerateResponse struct {
	Transformation *Transformation `json:"transformation"`
	RateLimit      QuotaView       `json:"rateLimit"`
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
	Day     Track     `json:"day"`
}

// ChatResponse is the 200 body of POST /chat
type ChatResponse struct {
	Response  string     `json:"response"`
	RateLimit *QuotaView `json:"rateLimit,omitempty"`
}

// ErrorResponse is the body of every non-2xx response. Quota fields are set on 429 only.
type ErrorResponse struct {
	Error     string     `json:"error"`
	Remaining *int       `json:"remaining,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	ResetAt   *time.Time `json:"resetAt,omitempty"`
}

// QuotaResponse is the body of GET /quota
type QuotaResponse struct {
	Feature   Feature   `json:"feature"`
	RateLimit QuotaView `json:"rateLimit"`
}
