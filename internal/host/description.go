package host

import "github.com/langfuse-nodes/server/internal/schema"

// Option is one choice of an options parameter.
type Option struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// Parameter declares one configurable node parameter.
// Collection parameters nest their children in Options.
type Parameter struct {
	DisplayName string      `json:"displayName"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Default     any         `json:"default"`
	Placeholder string      `json:"placeholder,omitempty"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Options     []Parameter `json:"options,omitempty"`
	Choices     []Option    `json:"choices,omitempty"`
}

// CredentialRef names a credential a node needs.
type CredentialRef struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Defaults are applied when a node is first added to a workflow.
type Defaults struct {
	Name string `json:"name"`
}

// Description is the static declaration of a node type.
type Description struct {
	DisplayName string
	Name        string
	Group       []string
	Version     []float64
	Description string
	Subtitle    string
	Defaults    Defaults
	Inputs      schema.PortSpec
	Outputs     schema.PortSpec
	OutputNames []string
	Credentials []CredentialRef
	Properties  []Parameter
}

// LatestVersion returns the highest declared version, or 1.
func (d Description) LatestVersion() float64 {
	latest := 1.0
	for i, v := range d.Version {
		if i == 0 || v > latest {
			latest = v
		}
	}
	return latest
}
