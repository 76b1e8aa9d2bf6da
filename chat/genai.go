package chat

import (
	"context"
	"fmt"
	"iter"

	"github.com/codewandler/concierge-go/tool"
	"google.golang.org/genai"
)

// GenAI is a Conversation on the Gemini API chats endpoint.
type GenAI struct {
	chat *genai.Chat
}

func NewGenAI(ctx context.Context, apiKey string, cfg Config) (*GenAI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	chat, err := client.Chats.Create(ctx, cfg.model(), genaiConfig(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return &GenAI{chat: chat}, nil
}

func (g *GenAI) Send(ctx context.Context, text string) iter.Seq2[Chunk, error] {
	return g.stream(ctx, genai.Part{Text: text})
}

func (g *GenAI) SendToolResults(ctx context.Context, results []tool.Result) iter.Seq2[Chunk, error] {
	parts := make([]genai.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		}})
	}
	return g.stream(ctx, parts...)
}

func (g *GenAI) stream(ctx context.Context, parts ...genai.Part) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for resp, err := range g.chat.SendMessageStream(ctx, parts...) {
			if err != nil {
				yield(Chunk{}, err)
				return
			}
			if !yield(genaiChunk(resp), nil) {
				return
			}
		}
	}
}

func genaiChunk(resp *genai.GenerateContentResponse) Chunk {
	var c Chunk
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return c
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.Text != "" && !p.Thought {
			c.Text += p.Text
		}
		if fc := p.FunctionCall; fc != nil {
			c.Calls = append(c.Calls, tool.Call{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return c
}

func genaiConfig(cfg Config) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{}

	if cfg.Instruction != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.Instruction}}}
	}
	if cfg.Temperature != nil {
		t := float32(*cfg.Temperature)
		gc.Temperature = &t
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, d := range cfg.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  genaiSchema(d.Parameters),
			})
		}
		gc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return gc
}

func genaiSchema(p tool.Parameters) *genai.Schema {
	s := &genai.Schema{
		Type:     genai.Type(p.Type),
		Required: p.Required,
	}
	if len(p.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, prop := range p.Properties {
			s.Properties[name] = &genai.Schema{
				Type:        genai.Type(prop.Type),
				Description: prop.Description,
				Enum:        prop.Enum,
			}
		}
	}
	return s
}
