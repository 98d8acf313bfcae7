package graph

import (
	"fmt"

	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
)

// Attributes returns attributes for the node when the graph is marshalled to
// graphviz dot format.
func (n *node) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "label", Value: fmt.Sprintf("%s\n%s", n.res.Kind, n.res.Name)},
	}
}

// MarshalDOT renders the graph in graphviz dot format.
func MarshalDOT(g *Graph, name string) ([]byte, error) {
	return dot.Marshal(g.g, name, "", "\t")
}
