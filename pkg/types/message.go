package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransformRequest represents the message format for the transform request queue
type TransformRequest struct {
	RequestID       string `json:"request-id"`       // Groups all files of one request
	FilePath        string `json:"file-path"`        // Input file reference (often a remote URI)
	FileID          string `json:"file-id"`          // Unique within a request
	ServiceEndpoint string `json:"service-endpoint"` // Coordinating service for this request
}

// DecodeError reports a queue message that is not a valid TransformRequest.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid transform request: %s: %v", e.Reason, e.Err)
	}
	return "invalid transform request: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeRequest parses a message body into a TransformRequest. Every field is
// required.
func DecodeRequest(body []byte) (*TransformRequest, error) {
	var req TransformRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &DecodeError{Reason: "malformed json", Err: err}
	}

	var missing []string
	if req.RequestID == "" {
		missing = append(missing, "request-id")
	}
	if req.FilePath == "" {
		missing = append(missing, "file-path")
	}
	if req.FileID == "" {
		missing = append(missing, "file-id")
	}
	if req.ServiceEndpoint == "" {
		missing = append(missing, "service-endpoint")
	}
	if len(missing) > 0 {
		return nil, &DecodeError{Reason: "missing " + strings.Join(missing, ", ")}
	}

	return &req, nil
}

// FailureRoutingKey is the dead-letter routing key for a request.
func FailureRoutingKey(requestID string) string {
	return requestID + "_errors"
}

// WithError returns a copy of the original message body with an "error" field
// added. Unknown fields of the original body are preserved.
func WithError(body []byte, errText string) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	doc["error"] = errText

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return out, nil
}
