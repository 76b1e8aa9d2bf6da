package chat

import (
	"testing"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"github.com/codewandler/concierge-go/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func testConfig() Config {
	temp := 0.5
	return Config{
		Instruction: "be helpful",
		Tools:       []tool.Declaration{tool.NewInterestForm(nil).Declaration()},
		Temperature: &temp,
	}
}

func TestGenAIConfig(t *testing.T) {
	gc := genaiConfig(testConfig())

	require.NotNil(t, gc.SystemInstruction)
	assert.Equal(t, "be helpful", gc.SystemInstruction.Parts[0].Text)
	require.NotNil(t, gc.Temperature)
	assert.InDelta(t, 0.5, *gc.Temperature, 1e-6)

	require.Len(t, gc.Tools, 1)
	decl := gc.Tools[0].FunctionDeclarations[0]
	assert.Equal(t, tool.InterestFormName, decl.Name)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, genai.TypeString, decl.Parameters.Properties["contact_info"].Type)
	assert.Equal(t, []string{"contact_info", "method"}, decl.Parameters.Required)
}

func TestGenAIChunk(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking", Thought: true},
			{Text: "Sure."},
			{FunctionCall: &genai.FunctionCall{ID: "c1", Name: "send_interest_form", Args: map[string]any{"method": "sms"}}},
		}},
	}}}

	c := genaiChunk(resp)
	assert.Equal(t, "Sure.", c.Text)
	require.Len(t, c.Calls, 1)
	assert.Equal(t, tool.Call{ID: "c1", Name: "send_interest_form", Args: map[string]any{"method": "sms"}}, c.Calls[0])

	assert.Equal(t, Chunk{}, genaiChunk(&genai.GenerateContentResponse{}))
}

func TestVertexConfig(t *testing.T) {
	m := &vertexgenai.GenerativeModel{}
	configureVertex(m, testConfig())

	require.NotNil(t, m.SystemInstruction)
	assert.Equal(t, vertexgenai.Text("be helpful"), m.SystemInstruction.Parts[0])
	require.NotNil(t, m.Temperature)
	assert.InDelta(t, 0.5, *m.Temperature, 1e-6)

	require.Len(t, m.Tools, 1)
	decl := m.Tools[0].FunctionDeclarations[0]
	assert.Equal(t, vertexgenai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, vertexgenai.TypeString, decl.Parameters.Properties["method"].Type)
}

func TestVertexChunk(t *testing.T) {
	resp := &vertexgenai.GenerateContentResponse{Candidates: []*vertexgenai.Candidate{{
		Content: &vertexgenai.Content{Parts: []vertexgenai.Part{
			vertexgenai.Text("Hi "),
			vertexgenai.Text("there"),
			vertexgenai.FunctionCall{Name: "send_interest_form", Args: map[string]any{"contact_info": "a@b.com"}},
		}},
	}}}

	c := vertexChunk(resp)
	assert.Equal(t, "Hi there", c.Text)
	require.Len(t, c.Calls, 1)
	assert.Empty(t, c.Calls[0].ID)
	assert.Equal(t, "a@b.com", c.Calls[0].Args["contact_info"])
}
