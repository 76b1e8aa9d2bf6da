package tool

// Type is a JSON schema type as understood by the model API.
type Type string

const (
	TypeObject Type = "OBJECT"
	TypeString Type = "STRING"
	TypeNumber Type = "NUMBER"
	TypeBool   Type = "BOOLEAN"
)

// Declaration describes a callable tool to the model.
type Declaration struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

type Parameters struct {
	Type       Type       `json:"type"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required,omitempty"`
}

type Properties map[string]Property

type Property struct {
	Type        Type     `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Set is the tools entry of a model request: a group of function declarations.
type Set struct {
	FunctionDeclarations []Declaration `json:"functionDeclarations"`
}

// Call is a tool invocation requested by the model.
type Call struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Result answers exactly one Call and echoes its id and name.
type Result struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// IsError reports whether the result carries an error payload.
func (r Result) IsError() bool {
	_, ok := r.Response["error"]
	return ok
}

func successResponse(message string) map[string]any {
	return map[string]any{
		"result":  "success",
		"message": message,
	}
}

func errorResponse(message string) map[string]any {
	return map[string]any{
		"error": message,
	}
}
