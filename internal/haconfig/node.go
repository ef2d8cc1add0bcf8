package haconfig

import (
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant held by a Node.
type Kind int

const (
	ScalarNode Kind = iota + 1
	MapNode
	SeqNode
)

// AdditionalKey is the reserved key every loaded file tree carries. Its value
// maps each include target string to the tree loaded for it.
const AdditionalKey = "additional"

// Node is one element of a configuration tree: a scalar, an ordered mapping
// or a sequence.
type Node struct {
	Kind    Kind
	Value   string
	Tag     string
	Entries []Entry
	Items   []*Node
}

// Entry is a single key/value pair of a mapping node.
type Entry struct {
	Key   string
	Value *Node
}

// Scalar builds a plain string scalar node.
func Scalar(value string) *Node {
	return &Node{Kind: ScalarNode, Value: value, Tag: "!!str"}
}

// Null builds a null scalar node.
func Null() *Node {
	return &Node{Kind: ScalarNode, Tag: "!!null"}
}

// Map builds a mapping node from entries, keeping their order.
func Map(entries ...Entry) *Node {
	return &Node{Kind: MapNode, Entries: entries}
}

// Seq builds a sequence node.
func Seq(items ...*Node) *Node {
	return &Node{Kind: SeqNode, Items: items}
}

// IsNull reports whether n is missing or a null scalar.
func (n *Node) IsNull() bool {
	return n == nil || (n.Kind == ScalarNode && n.Tag == "!!null")
}

// Get returns the value stored under key in a mapping node.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != MapNode {
		return nil, false
	}
	for _, e := range n.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key in place, or appends a new entry.
func (n *Node) Set(key string, value *Node) {
	for i := range n.Entries {
		if n.Entries[i].Key == key {
			n.Entries[i].Value = value
			return
		}
	}
	n.Entries = append(n.Entries, Entry{Key: key, Value: value})
}

// String returns the scalar text of n, or "" for non-scalars and nulls.
func (n *Node) String() string {
	if n == nil || n.Kind != ScalarNode || n.IsNull() {
		return ""
	}
	return n.Value
}

// parseDocument decodes text into a mapping node. Sequence roots are keyed
// by element index; scalar and empty roots yield an empty mapping.
func parseDocument(text string) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	root := fromYAML(&doc)
	switch {
	case root == nil:
		return Map(), nil
	case root.Kind == MapNode:
		return root, nil
	case root.Kind == SeqNode:
		out := Map()
		for i, item := range root.Items {
			out.Entries = append(out.Entries, Entry{Key: strconv.Itoa(i), Value: item})
		}
		return out, nil
	default:
		return Map(), nil
	}
}

func fromYAML(y *yaml.Node) *Node {
	if y == nil {
		return nil
	}
	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return nil
		}
		return fromYAML(y.Content[0])
	case yaml.AliasNode:
		return fromYAML(y.Alias)
	case yaml.MappingNode:
		out := &Node{Kind: MapNode, Entries: make([]Entry, 0, len(y.Content)/2)}
		for i := 0; i+1 < len(y.Content); i += 2 {
			out.Entries = append(out.Entries, Entry{
				Key:   y.Content[i].Value,
				Value: fromYAML(y.Content[i+1]),
			})
		}
		return out
	case yaml.SequenceNode:
		out := &Node{Kind: SeqNode, Items: make([]*Node, 0, len(y.Content))}
		for _, c := range y.Content {
			out.Items = append(out.Items, fromYAML(c))
		}
		return out
	default:
		return &Node{Kind: ScalarNode, Value: y.Value, Tag: y.ShortTag()}
	}
}
