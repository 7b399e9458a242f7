// Package link resolves the Langfuse objects supplied by connected sub-nodes.
// Supplied values are converted into a Handle once, at the point they are read.
package link

import (
	"context"
	"fmt"
	"strings"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langfuse"
	"github.com/langfuse-nodes/server/internal/schema"
)

// Kind tags the variant held by a Handle.
type Kind int

const (
	Absent Kind = iota
	Trace
	Span
	Generation
)

func (k Kind) String() string {
	switch k {
	case Trace:
		return "Trace"
	case Span:
		return "Span"
	case Generation:
		return "Generation"
	default:
		return "Absent"
	}
}

// Handle is the tagged union of resolvable Langfuse objects.
type Handle struct {
	kind       Kind
	trace      *langfuse.Trace
	span       *langfuse.Span
	generation *langfuse.Generation
}

// Kind reports which variant is held.
func (h Handle) Kind() Kind { return h.kind }

// IsAbsent reports whether nothing was resolved.
func (h Handle) IsAbsent() bool { return h.kind == Absent }

func (h Handle) Trace() *langfuse.Trace { return h.trace }

func (h Handle) Span() *langfuse.Span { return h.span }

func (h Handle) Generation() *langfuse.Generation { return h.generation }

// Parent returns the held object as something observations can nest under, or nil.
func (h Handle) Parent() langfuse.Parent {
	switch h.kind {
	case Trace:
		return h.trace
	case Span:
		return h.span
	case Generation:
		return h.generation
	}
	return nil
}

// Of converts a supplied value. ok is false for anything that is not a Langfuse object.
// A nil Langfuse pointer converts to an Absent handle.
func Of(v any) (h Handle, ok bool) {
	switch t := v.(type) {
	case nil:
		return Handle{}, true
	case *langfuse.Trace:
		if t == nil {
			return Handle{}, true
		}
		return Handle{kind: Trace, trace: t}, true
	case *langfuse.Span:
		if t == nil {
			return Handle{}, true
		}
		return Handle{kind: Span, span: t}, true
	case *langfuse.Generation:
		if t == nil {
			return Handle{}, true
		}
		return Handle{kind: Generation, generation: t}, true
	}
	return Handle{}, false
}

// Role names what a connection is expected to carry.
type Role string

const (
	RoleTrace       Role = "trace"
	RoleObservation Role = "observation"
	// RoleCallback carries callback handlers, collected with CollectAll.
	RoleCallback Role = "callback"
)

// RoleSpec describes the connection a role arrives on and what it may hold.
type RoleSpec struct {
	Connection schema.ConnectionType
	Accepts    []Kind
	// Nodes is the allow-list of node types that may supply this role.
	Nodes []string
}

func (s RoleSpec) accepts(k Kind) bool {
	for _, a := range s.Accepts {
		if a == k {
			return true
		}
	}
	return false
}

func (s RoleSpec) expected() string {
	names := make([]string, len(s.Accepts))
	for i, k := range s.Accepts {
		names[i] = k.String()
	}
	return strings.Join(names, " or ")
}

// Table is the static role configuration.
type Table map[Role]RoleSpec

// DefaultTable returns the roles served by the trace and observation node types of
// every package name given.
func DefaultTable(packages ...string) Table {
	var traceNodes, observationNodes, callbackNodes []string
	for _, p := range packages {
		traceNodes = append(traceNodes, p+".trace")
		observationNodes = append(observationNodes, p+".observation")
		callbackNodes = append(callbackNodes, p+".callbackHandler")
	}
	return Table{
		RoleTrace: {
			Connection: schema.AIChain,
			Accepts:    []Kind{Trace},
			Nodes:      traceNodes,
		},
		RoleObservation: {
			Connection: schema.AIChain,
			Accepts:    []Kind{Span, Generation},
			Nodes:      observationNodes,
		},
		RoleCallback: {
			Connection: schema.AIChain,
			Nodes:      callbackNodes,
		},
	}
}

// Filter returns the port filter admitting the suppliers of all given roles.
func (t Table) Filter(roles ...Role) *schema.PortFilter {
	f := &schema.PortFilter{}
	for _, r := range roles {
		f.Nodes = append(f.Nodes, t[r].Nodes...)
	}
	return f
}

// Resolver reads Handles from connected sub-nodes according to a Table.
type Resolver struct {
	table Table
}

func NewResolver(t Table) *Resolver {
	return &Resolver{table: t}
}

// Table returns the resolver configuration.
func (r *Resolver) Table() Table {
	return r.table
}

// ResolveSingle returns the handle supplied for role. Nothing connected is not an error.
func (r *Resolver) ResolveSingle(ctx context.Context, src host.ConnectionSource, role Role) (Handle, error) {
	spec, ok := r.table[role]
	if !ok {
		return Handle{}, fmt.Errorf("unknown link role %q", role)
	}
	v, err := src.InputConnectionData(ctx, spec.Connection, 0)
	if err != nil {
		return Handle{}, err
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return Handle{}, nil
		}
		v = list[0]
	}
	if v == nil {
		return Handle{}, nil
	}
	h, ok := Of(v)
	if ok && h.IsAbsent() {
		return Handle{}, nil
	}
	if !ok || !spec.accepts(h.kind) {
		return Handle{}, errx.LinkType(src.Node().Name, string(role), spec.expected(), fmt.Sprintf("%T", v))
	}
	return h, nil
}

// ResolveEither tries roles in order and returns the first present handle.
// The first type error is returned only when no role resolves.
func (r *Resolver) ResolveEither(ctx context.Context, src host.ConnectionSource, roles ...Role) (Handle, error) {
	var typeErr error
	for _, role := range roles {
		h, err := r.ResolveSingle(ctx, src, role)
		if err != nil {
			if typeErr == nil {
				typeErr = err
			}
			continue
		}
		if !h.IsAbsent() {
			return h, nil
		}
	}
	return Handle{}, typeErr
}

// Require is ResolveSingle that fails when nothing is connected.
func (r *Resolver) Require(ctx context.Context, src host.ConnectionSource, role Role) (Handle, error) {
	h, err := r.ResolveSingle(ctx, src, role)
	if err != nil {
		return Handle{}, err
	}
	if h.IsAbsent() {
		return Handle{}, errx.MissingLink(src.Node().Name, string(role))
	}
	return h, nil
}

// RequireEither is ResolveEither that fails when nothing is connected.
func (r *Resolver) RequireEither(ctx context.Context, src host.ConnectionSource, roles ...Role) (Handle, error) {
	h, err := r.ResolveEither(ctx, src, roles...)
	if err != nil {
		return Handle{}, err
	}
	if h.IsAbsent() {
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		return Handle{}, errx.MissingLink(src.Node().Name, strings.Join(names, "/"))
	}
	return h, nil
}

// CollectAll returns every value connected on ct as a T.
func CollectAll[T any](ctx context.Context, src host.ConnectionSource, ct schema.ConnectionType, what string) ([]T, error) {
	v, err := src.InputConnectionData(ctx, ct, 0)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	out := make([]T, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		t, ok := item.(T)
		if !ok {
			return nil, errx.LinkType(src.Node().Name, string(ct), what, fmt.Sprintf("%T", item))
		}
		out = append(out, t)
	}
	return out, nil
}

// First returns the first value connected on ct as a T, or ok=false when nothing is connected.
func First[T any](ctx context.Context, src host.ConnectionSource, ct schema.ConnectionType, what string) (t T, ok bool, err error) {
	all, err := CollectAll[T](ctx, src, ct, what)
	if err != nil || len(all) == 0 {
		return t, false, err
	}
	return all[0], true, nil
}
