// Package property declares and extracts the parameter groups that describe
// Langfuse traces and observations.
package property

import (
	"github.com/langfuse-nodes/server/internal/host"
)

// AdditionalPropertiesWarning is prepended to every catch-all field description.
const AdditionalPropertiesWarning = "You need to make sure that the additional properties you pass have the correct type, otherwise Langfuse logging will fail silently without any error."

const additionalPropertiesName = "additionalProperties"

// Getter reads and validates one value. ok is false when the value is absent.
type Getter func(src host.ParameterSource, prefix string) (v any, ok bool, err error)

// Spec pairs a parameter declaration with its typed getter.
type Spec struct {
	Definition host.Parameter
	Getter     Getter
}

func read(src host.ParameterSource, path string) (any, error) {
	return src.Parameter(path, 0, nil)
}

// StringSpec declares a string field. Empty strings count as absent.
func StringSpec(displayName, name, description string) Spec {
	return Spec{
		Definition: host.Parameter{DisplayName: displayName, Name: name, Type: "string", Default: "", Description: description},
		Getter: func(src host.ParameterSource, prefix string) (any, bool, error) {
			path := prefix + name
			v, err := read(src, path)
			if err != nil || v == nil || v == "" {
				return nil, false, err
			}
			s, err := String(src.Node().Name, path, v)
			if err != nil {
				return nil, false, err
			}
			return s, true, nil
		},
	}
}

// AnySpec declares a free-form JSON field.
func AnySpec(displayName, name string) Spec {
	return Spec{
		Definition: host.Parameter{DisplayName: displayName, Name: name, Type: "json", Default: ""},
		Getter: func(src host.ParameterSource, prefix string) (any, bool, error) {
			v, err := read(src, prefix+name)
			if err != nil || v == nil {
				return nil, false, err
			}
			out := Any(v)
			return out, out != nil, nil
		},
	}
}

// DateTimeSpec declares a timestamp field.
func DateTimeSpec(displayName, name string) Spec {
	return Spec{
		Definition: host.Parameter{DisplayName: displayName, Name: name, Type: "string", Default: ""},
		Getter: func(src host.ParameterSource, prefix string) (any, bool, error) {
			path := prefix + name
			v, err := read(src, path)
			if err != nil {
				return nil, false, err
			}
			t, ok, err := DateTime(src.Node().Name, path, v)
			if err != nil || !ok {
				return nil, false, err
			}
			return t, true, nil
		},
	}
}

// Group is a named collection of specs plus a catch-all JSON field.
type Group struct {
	Name                  string
	Specs                 []Spec
	AdditionalDescription string
}

// Declare renders the group as one collection parameter.
func (g Group) Declare() host.Parameter {
	options := make([]host.Parameter, 0, len(g.Specs)+1)
	for _, s := range g.Specs {
		options = append(options, s.Definition)
	}
	options = append(options, host.Parameter{
		DisplayName: "Additional Properties",
		Name:        additionalPropertiesName,
		Type:        "json",
		Default:     "{}",
		Placeholder: "{}",
		Description: AdditionalPropertiesWarning + " " + g.AdditionalDescription,
	})
	return host.Parameter{
		DisplayName: "Properties",
		Name:        g.Name,
		Type:        "collection",
		Default:     map[string]any{},
		Placeholder: "Add",
		Options:     options,
	}
}

// Extract reads every spec under prefix + group name, drops absent values
// and merges the catch-all object on top. Catch-all keys win.
func (g Group) Extract(src host.ParameterSource, prefix string) (map[string]any, error) {
	childPrefix := prefix + g.Name + "."
	out := make(map[string]any, len(g.Specs))

	for _, s := range g.Specs {
		v, ok, err := s.Getter(src, childPrefix)
		if err != nil {
			return nil, err
		}
		if ok {
			out[s.Definition.Name] = v
		}
	}

	path := childPrefix + additionalPropertiesName
	raw, err := src.Parameter(path, 0, "{}")
	if err != nil {
		return nil, err
	}
	extra, err := JSON(src.Node().Name, path, raw)
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		out[k] = v
	}
	return out, nil
}
