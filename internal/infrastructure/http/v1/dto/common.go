// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// ListResponse wraps a page of records.
type ListResponse struct {
	Items      []RecordResponse `json:"items"`
	TotalCount int64            `json:"totalCount"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	// Retryable is set for contention: the whole write may be sent again.
	Retryable bool `json:"retryable,omitempty"`
}
