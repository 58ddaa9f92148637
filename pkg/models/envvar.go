package models

// EnvScope is the visibility of an environment variable.
type EnvScope string

const (
	EnvScopeGlobal EnvScope = "global"
	EnvScopePrompt EnvScope = "prompt"
)

// EnvVariable is a user-managed value referenced from variables with $env:.
// PromptID is zero for global variables.
type EnvVariable struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Scope    EnvScope `json:"scope"`
	ID       int64    `json:"id"`
	PromptID int64    `json:"prompt_id,omitempty"`
}

// IsGlobal reports whether the variable is visible to every prompt.
func (e EnvVariable) IsGlobal() bool {
	return e.Scope == EnvScopeGlobal || e.Scope == ""
}
