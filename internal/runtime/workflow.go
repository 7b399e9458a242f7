// Package runtime loads workflow files and executes them against the node registry.
package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/schema"
)

// Connection wires the output of From into the input of To.
type Connection struct {
	From string                `yaml:"from" json:"from"`
	To   string                `yaml:"to" json:"to"`
	Type schema.ConnectionType `yaml:"type" json:"type"`
}

// Workflow is a workflow file.
type Workflow struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	Nodes       []host.Node  `yaml:"nodes" json:"nodes"`
	Connections []Connection `yaml:"connections" json:"connections"`
}

// Parse decodes a workflow. Unknown fields are rejected and a missing
// connection type means main.
func Parse(data []byte) (*Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var wf Workflow
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}
	for i := range wf.Connections {
		if wf.Connections[i].Type == "" {
			wf.Connections[i].Type = schema.Main
		}
	}
	for i := range wf.Nodes {
		if wf.Nodes[i].TypeVersion == 0 {
			wf.Nodes[i].TypeVersion = 1
		}
		if wf.Nodes[i].Parameters == nil {
			wf.Nodes[i].Parameters = map[string]any{}
		}
	}
	return &wf, nil
}

// Load reads and parses a workflow file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	return Parse(data)
}

// Node returns the node called name.
func (w *Workflow) Node(name string) (host.Node, bool) {
	for _, n := range w.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return host.Node{}, false
}

// incoming returns the connections into node of type ct, in file order.
func (w *Workflow) incoming(node string, ct schema.ConnectionType) []Connection {
	var out []Connection
	for _, c := range w.Connections {
		if c.To == node && c.Type == ct {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks wf against the registered node types: every type is known, every
// connection joins existing nodes on a port the target offers, allow-lists and
// connection limits hold, and main connections form no cycle.
func Validate(wf *Workflow, reg *host.Registry, eval *schema.Evaluator) error {
	var errs []error
	seen := map[string]bool{}
	types := map[string]host.NodeType{}
	for _, n := range wf.Nodes {
		if n.Name == "" {
			errs = append(errs, errors.New("a node has no name"))
			continue
		}
		if seen[n.Name] {
			errs = append(errs, fmt.Errorf("node name %q is used twice", n.Name))
			continue
		}
		seen[n.Name] = true
		nt, ok := reg.Get(n.Type)
		if !ok {
			errs = append(errs, fmt.Errorf("node %q has unknown type %q", n.Name, n.Type))
			continue
		}
		types[n.Name] = nt
	}

	inputs := map[string][]schema.Port{}
	portsOf := func(name string) ([]schema.Port, error) {
		if p, ok := inputs[name]; ok {
			return p, nil
		}
		n, _ := wf.Node(name)
		p, err := eval.Ports(types[name].Description().Inputs, n.Parameters)
		if err != nil {
			return nil, fmt.Errorf("node %q inputs: %w", name, err)
		}
		inputs[name] = p
		return p, nil
	}

	counts := map[Connection]int{}
	for _, c := range wf.Connections {
		if !seen[c.From] || !seen[c.To] {
			errs = append(errs, fmt.Errorf("connection %s -> %s references an unknown node", c.From, c.To))
			continue
		}
		from, to := types[c.From], types[c.To]
		if from == nil || to == nil {
			continue
		}
		if err := checkRoles(c, from, to); err != nil {
			errs = append(errs, err)
			continue
		}
		ports, err := portsOf(c.To)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		port, ok := schema.Find(ports, c.Type)
		if !ok {
			errs = append(errs, fmt.Errorf("node %q has no %s input", c.To, c.Type))
			continue
		}
		if !port.Filter.Allows(from.Description().Name) {
			errs = append(errs, fmt.Errorf("node %q does not accept %s on its %s input", c.To, from.Description().Name, c.Type))
			continue
		}
		key := Connection{To: c.To, Type: c.Type}
		counts[key]++
		if port.MaxConnections > 0 && counts[key] == port.MaxConnections+1 {
			errs = append(errs, fmt.Errorf("node %q accepts at most %d %s connection(s)", c.To, port.MaxConnections, c.Type))
		}
	}

	if len(errs) == 0 {
		if _, err := order(wf, types); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkRoles(c Connection, from, to host.NodeType) error {
	if c.Type == schema.Main {
		if _, ok := from.(host.Executor); !ok {
			return fmt.Errorf("node %q has no main output", c.From)
		}
		if _, ok := to.(host.Executor); !ok {
			return fmt.Errorf("node %q has no main input", c.To)
		}
		return nil
	}
	if _, ok := from.(host.Supplier); !ok {
		return fmt.Errorf("node %q cannot supply %s", c.From, c.Type)
	}
	return nil
}

// order sorts the executor nodes along main connections, keeping file order among peers.
func order(wf *Workflow, types map[string]host.NodeType) ([]string, error) {
	var names []string
	inDegree := map[string]int{}
	for _, n := range wf.Nodes {
		if _, ok := types[n.Name].(host.Executor); ok {
			names = append(names, n.Name)
			inDegree[n.Name] = 0
		}
	}
	for _, c := range wf.Connections {
		if c.Type == schema.Main {
			inDegree[c.To]++
		}
	}

	var sorted []string
	done := map[string]bool{}
	for len(sorted) < len(names) {
		progressed := false
		for _, name := range names {
			if done[name] || inDegree[name] > 0 {
				continue
			}
			done[name] = true
			sorted = append(sorted, name)
			progressed = true
			for _, c := range wf.Connections {
				if c.Type == schema.Main && c.From == name {
					inDegree[c.To]--
				}
			}
		}
		if !progressed {
			return nil, errors.New("main connections form a cycle")
		}
	}
	return sorted, nil
}
