package chat

import (
	"context"
	"iter"

	"github.com/codewandler/concierge-go/tool"
)

const DefaultModel = "gemini-3-flash-preview"

// Chunk is one streamed increment of a model turn.
type Chunk struct {
	Text  string
	Calls []tool.Call
}

// Conversation is a stateful text conversation with a model. Each call streams
// the increments of one model turn.
type Conversation interface {
	Send(ctx context.Context, text string) iter.Seq2[Chunk, error]
	// SendToolResults answers every tool call of the previous turn in one
	// request and streams the continuation.
	SendToolResults(ctx context.Context, results []tool.Result) iter.Seq2[Chunk, error]
}

// Config is shared by the conversation backends.
type Config struct {
	Model       string
	Instruction string
	Tools       []tool.Declaration
	Temperature *float64
}

func (c Config) model() string {
	if c.Model == "" {
		return DefaultModel
	}
	return c.Model
}
