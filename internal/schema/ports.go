package schema

import (
	"fmt"
	"strings"
)

// ConnectionType is the wire tag of a port.
type ConnectionType string

const (
	Main            ConnectionType = "main"
	AIChain         ConnectionType = "ai_chain"
	AILanguageModel ConnectionType = "ai_languageModel"
	AIMemory        ConnectionType = "ai_memory"
	AITool          ConnectionType = "ai_tool"
	AIOutputParser  ConnectionType = "ai_outputParser"
)

// PortFilter restricts which node types may connect to a port.
type PortFilter struct {
	Nodes []string `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// Allows reports whether nodeType passes the filter. An empty filter allows everything.
func (f *PortFilter) Allows(nodeType string) bool {
	if f == nil || len(f.Nodes) == 0 {
		return true
	}
	for _, n := range f.Nodes {
		if n == nodeType {
			return true
		}
	}
	return false
}

// Port is one input or output slot of a node.
type Port struct {
	Type           ConnectionType `json:"type"`
	DisplayName    string         `json:"displayName,omitempty"`
	Required       bool           `json:"required,omitempty"`
	MaxConnections int            `json:"maxConnections,omitempty"`
	Filter         *PortFilter    `json:"filter,omitempty"`
}

// PortSpec is either a static list or expression text evaluated against node parameters.
type PortSpec struct {
	Static     []Port
	Expression string
}

// Ports builds a static PortSpec.
func Ports(ports ...Port) PortSpec {
	return PortSpec{Static: ports}
}

// Expr builds an expression PortSpec.
func Expr(text string) PortSpec {
	return PortSpec{Expression: text}
}

// IsExpression reports whether the ports are computed from parameters.
func (s PortSpec) IsExpression() bool {
	return s.Expression != ""
}

func (s PortSpec) String() string {
	if s.IsExpression() {
		return s.Expression
	}
	types := make([]string, 0, len(s.Static))
	for _, p := range s.Static {
		types = append(types, string(p.Type))
	}
	return fmt.Sprintf("[%s]", strings.Join(types, ", "))
}

// Find returns the first port of the given type.
func Find(ports []Port, ct ConnectionType) (Port, bool) {
	for _, p := range ports {
		if p.Type == ct {
			return p, true
		}
	}
	return Port{}, false
}
