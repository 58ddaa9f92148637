package models

// PromptMetadata is the sidecar document stored next to a prompt body.
type PromptMetadata struct {
	Title              string             `yaml:"title" json:"title"`
	PrimaryCategory    string             `yaml:"primary_category" json:"primary_category"`
	Directory          string             `yaml:"directory" json:"directory"`
	OneLineDescription string             `yaml:"one_line_description" json:"one_line_description"`
	Description        string             `yaml:"description" json:"description"`
	ContentHash        string             `yaml:"content_hash,omitempty" json:"content_hash,omitempty"`
	Subcategories      []string           `yaml:"subcategories,omitempty" json:"subcategories,omitempty"`
	Tags               []string           `yaml:"tags" json:"tags"`
	Variables          []VariableMetadata `yaml:"variables" json:"variables"`
	Fragments          []FragmentMetadata `yaml:"fragments,omitempty" json:"fragments,omitempty"`
}

// VariableMetadata declares a variable in a sidecar.
type VariableMetadata struct {
	Name            string `yaml:"name" json:"name"`
	Role            string `yaml:"role" json:"role"`
	OptionalForUser bool   `yaml:"optional_for_user" json:"optional_for_user"`
}

// FragmentMetadata binds a fragment to a variable in a sidecar.
type FragmentMetadata struct {
	Category string `yaml:"category" json:"category"`
	Name     string `yaml:"name" json:"name"`
	Variable string `yaml:"variable,omitempty" json:"variable,omitempty"`
}

// Fragment is a reusable text block stored at <fragments>/<category>/<name>.md.
type Fragment struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Content  string `json:"content,omitempty"`
}
