package models

// Favorite marks a prompt as a favorite. It references the prompt by its
// stable UUID so it survives full rebuilds.
type Favorite struct {
	PromptUUID     string `json:"prompt_uuid"`
	ID             int64  `json:"id"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

// Execution records one run of a prompt with its resolved variables.
type Execution struct {
	PromptUUID     string            `json:"prompt_uuid"`
	Directory      string            `json:"directory"`
	Variables      map[string]string `json:"variables,omitempty"`
	ID             int64             `json:"id"`
	CreatedAtEpoch int64             `json:"created_at_epoch"`
}
