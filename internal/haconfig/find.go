package haconfig

import "strconv"

// WalkFunc is called for every keyed value during Walk. Sequence elements
// are reported with their index as key. Returning false stops the walk.
type WalkFunc func(key string, value *Node) bool

// Walk visits the tree in depth-first pre-order. A mapping entry is reported
// before its value is descended into, and entries are visited in document
// order. Walk reports whether the traversal ran to completion.
func Walk(n *Node, fn WalkFunc) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case MapNode:
		for _, e := range n.Entries {
			if !fn(e.Key, e.Value) {
				return false
			}
			if !Walk(e.Value, fn) {
				return false
			}
		}
	case SeqNode:
		for i, item := range n.Items {
			if !fn(strconv.Itoa(i), item) {
				return false
			}
			if !Walk(item, fn) {
				return false
			}
		}
	}
	return true
}

// Find returns the value of the first key named key in pre-order, even when
// that value is null. The second result is false when no such key exists.
func Find(tree *Node, key string) (*Node, bool) {
	var (
		found *Node
		ok    bool
	)
	Walk(tree, func(k string, v *Node) bool {
		if k == key {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}
