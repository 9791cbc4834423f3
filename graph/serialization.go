package graph

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/stategraph/types"
)

// Definition is the serializable shape of a graph: structure by name,
// behavior resolved against registries at build time. It lets graph
// topology live in config files while node functions stay in code.
type Definition struct {
	Name     string            `json:"name" yaml:"name"`
	Entry    string            `json:"entry" yaml:"entry"`
	MaxSteps int               `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	Nodes    []string          `json:"nodes" yaml:"nodes"`
	Edges    []EdgeDef         `json:"edges,omitempty" yaml:"edges,omitempty"`
	Branches []BranchDef       `json:"branches,omitempty" yaml:"branches,omitempty"`
	Reducers map[string]string `json:"reducers,omitempty" yaml:"reducers,omitempty"`
}

// EdgeDef is a static transition.
type EdgeDef struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// BranchDef is a conditional transition: a named router and its closed
// destination set.
type BranchDef struct {
	From         string   `json:"from" yaml:"from"`
	Router       string   `json:"router" yaml:"router"`
	Destinations []string `json:"destinations" yaml:"destinations"`
}

// ToJSON serializes the definition.
func (d *Definition) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// ToYAML serializes the definition.
func (d *Definition) ToYAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// DefinitionFromJSON parses a definition.
func DefinitionFromJSON(data []byte) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse graph definition: %w", err)
	}
	return &d, nil
}

// DefinitionFromYAML parses a definition.
func DefinitionFromYAML(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse graph definition: %w", err)
	}
	return &d, nil
}

// namedReducers maps reducer names usable in definitions to their
// implementations.
var namedReducers = map[string]Reducer{
	"last":       LastValueReducer(),
	"append":     AppendReducer(),
	"sum":        SumReducer(),
	"max":        MaxReducer(),
	"deep_merge": DeepMergeReducer(),
}

// BuildDefinition materializes a definition into a builder. Node and
// router names are resolved against the given maps; unknown names fail
// with INVALID_GRAPH before anything executes.
func BuildDefinition(d *Definition, nodes map[string]NodeFunc, routers map[string]RouterFunc) (*Builder, error) {
	b := NewBuilder(d.Name)

	for _, name := range d.Nodes {
		fn, ok := nodes[name]
		if !ok {
			return nil, types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("definition references unbound node: %s", name))
		}
		if err := b.AddNode(name, fn); err != nil {
			return nil, err
		}
	}

	for _, e := range d.Edges {
		if err := b.AddEdge(e.From, e.To); err != nil {
			return nil, err
		}
	}

	for _, br := range d.Branches {
		router, ok := routers[br.Router]
		if !ok {
			return nil, types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("definition references unbound router: %s", br.Router))
		}
		if err := b.AddConditionalEdges(br.From, router, br.Destinations...); err != nil {
			return nil, err
		}
	}

	for key, name := range d.Reducers {
		r, ok := namedReducers[name]
		if !ok {
			return nil, types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("unknown reducer %q for key %s", name, key))
		}
		b.WithReducer(key, r)
	}

	b.SetEntry(d.Entry)
	return b, nil
}

// CompileDefinition builds and compiles a definition in one step,
// honoring its max_steps when set.
func CompileDefinition(d *Definition, nodes map[string]NodeFunc, routers map[string]RouterFunc, opts ...Option) (*CompiledGraph, error) {
	b, err := BuildDefinition(d, nodes, routers)
	if err != nil {
		return nil, err
	}
	if d.MaxSteps > 0 {
		opts = append([]Option{WithMaxSteps(d.MaxSteps)}, opts...)
	}
	return b.Compile(opts...)
}
