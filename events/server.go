package events

import (
	"github.com/codewandler/concierge-go/audio"
	"github.com/codewandler/concierge-go/tool"
)

// ServerMessage is any message received on a live channel. Exactly one of the
// fields is normally set.
type ServerMessage struct {
	SetupComplete        *SetupComplete        `json:"setupComplete,omitempty"`
	ServerContent        *ServerContent        `json:"serverContent,omitempty"`
	ToolCall             *ToolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *ToolCallCancellation `json:"toolCallCancellation,omitempty"`
	GoAway               *GoAway               `json:"goAway,omitempty"`
	Error                *ErrorDetail          `json:"error,omitempty"`
}

type SetupComplete struct{}

type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

type Transcription struct {
	Text string `json:"text"`
}

type ToolCall struct {
	FunctionCalls []tool.Call `json:"functionCalls"`
}

type ToolCallCancellation struct {
	IDs []string `json:"ids"`
}

type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// Audio returns the inline audio payloads of the model turn in order.
func (c *ServerContent) Audio() []audio.Blob {
	if c == nil || c.ModelTurn == nil {
		return nil
	}
	var blobs []audio.Blob
	for _, p := range c.ModelTurn.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			blobs = append(blobs, *p.InlineData)
		}
	}
	return blobs
}

// Text returns the concatenated text parts of the model turn.
func (c *ServerContent) Text() string {
	if c == nil || c.ModelTurn == nil {
		return ""
	}
	var s string
	for _, p := range c.ModelTurn.Parts {
		s += p.Text
	}
	return s
}
