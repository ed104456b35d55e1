package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileNode is the YAML shape of a node; the type tag is parsed into the
// closed NodeType set before the graph is built.
type fileNode struct {
	ID     string     `yaml:"id"`
	Type   string     `yaml:"type"`
	Config NodeConfig `yaml:"config"`
}

// File is the on-disk YAML representation of a workflow graph.
//
// Example:
//
//	name: summarize-and-compare
//	nodes:
//	  - id: prompt
//	    type: input
//	    config:
//	      value: "Summarize the attached report."
//	  - id: openai
//	    type: provider_call
//	    config:
//	      provider: openai
//	  - id: result
//	    type: output
//	edges:
//	  - from: prompt
//	    to: openai
//	  - from: openai
//	    to: result
type File struct {
	Name  string     `yaml:"name"`
	Nodes []fileNode `yaml:"nodes"`
	Edges []Edge     `yaml:"edges"`
}

// Parse builds a validated Graph from YAML bytes.
func Parse(data []byte) (*Graph, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}
	if len(file.Nodes) == 0 {
		return nil, fmt.Errorf("workflow file defines no nodes")
	}

	nodes := make([]Node, 0, len(file.Nodes))
	for _, fn := range file.Nodes {
		nodeType, err := ParseNodeType(fn.Type)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", fn.ID, err)
		}
		nodes = append(nodes, Node{ID: fn.ID, Type: nodeType, Config: fn.Config})
	}

	return NewGraph(nodes, file.Edges)
}

// Load reads and builds a graph from a YAML file on disk.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return Parse(data)
}
