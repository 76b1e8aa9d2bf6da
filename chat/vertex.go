package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"github.com/codewandler/concierge-go/tool"
	"google.golang.org/api/iterator"
)

// Vertex is a Conversation on Vertex AI. Vertex function calls carry no id, so
// results are matched by name.
type Vertex struct {
	client *vertexgenai.Client
	chat   *vertexgenai.ChatSession
}

func NewVertex(ctx context.Context, projectID, location string, cfg Config) (*Vertex, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	m := c.GenerativeModel(cfg.model())
	configureVertex(m, cfg)

	return &Vertex{client: c, chat: m.StartChat()}, nil
}

func (v *Vertex) Close() error { return v.client.Close() }

func (v *Vertex) Send(ctx context.Context, text string) iter.Seq2[Chunk, error] {
	return v.stream(ctx, vertexgenai.Text(text))
}

func (v *Vertex) SendToolResults(ctx context.Context, results []tool.Result) iter.Seq2[Chunk, error] {
	parts := make([]vertexgenai.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, vertexgenai.FunctionResponse{Name: r.Name, Response: r.Response})
	}
	return v.stream(ctx, parts...)
}

func (v *Vertex) stream(ctx context.Context, parts ...vertexgenai.Part) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		it := v.chat.SendMessageStream(ctx, parts...)
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(Chunk{}, err)
				return
			}
			if !yield(vertexChunk(resp), nil) {
				return
			}
		}
	}
}

func vertexChunk(resp *vertexgenai.GenerateContentResponse) Chunk {
	var c Chunk
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return c
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case vertexgenai.Text:
			c.Text += string(p)
		case vertexgenai.FunctionCall:
			c.Calls = append(c.Calls, tool.Call{Name: p.Name, Args: p.Args})
		}
	}
	return c
}

func configureVertex(m *vertexgenai.GenerativeModel, cfg Config) {
	if cfg.Instruction != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(cfg.Instruction)}}
	}
	if cfg.Temperature != nil {
		m.SetTemperature(float32(*cfg.Temperature))
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*vertexgenai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, d := range cfg.Tools {
			decls = append(decls, &vertexgenai.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  vertexSchema(d.Parameters),
			})
		}
		m.Tools = []*vertexgenai.Tool{{FunctionDeclarations: decls}}
	}
}

func vertexSchema(p tool.Parameters) *vertexgenai.Schema {
	s := &vertexgenai.Schema{
		Type:     vertexType(p.Type),
		Required: p.Required,
	}
	if len(p.Properties) > 0 {
		s.Properties = make(map[string]*vertexgenai.Schema, len(p.Properties))
		for name, prop := range p.Properties {
			s.Properties[name] = &vertexgenai.Schema{
				Type:        vertexType(prop.Type),
				Description: prop.Description,
				Enum:        prop.Enum,
			}
		}
	}
	return s
}

func vertexType(t tool.Type) vertexgenai.Type {
	switch t {
	case tool.TypeObject:
		return vertexgenai.TypeObject
	case tool.TypeString:
		return vertexgenai.TypeString
	case tool.TypeNumber:
		return vertexgenai.TypeNumber
	case tool.TypeBool:
		return vertexgenai.TypeBoolean
	default:
		return vertexgenai.TypeUnspecified
	}
}
