package events

import (
	"encoding/json"
	"fmt"

	"github.com/codewandler/concierge-go/audio"
)

type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Content is a role tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *audio.Blob `json:"inlineData,omitempty"`
}

func TextContent(text string) *Content {
	return &Content{Parts: []Part{{Text: text}}}
}

// ErrorDetail is an error reported by the remote side.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *ErrorDetail) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%d %s: %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}
