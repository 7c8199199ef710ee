package tree

// Documents returns every file node in depth-first tree order.
func (n *Node) Documents() []*Node {
	var docs []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		if cur == nil {
			return
		}
		if cur.Type == NodeTypeFile {
			docs = append(docs, cur)
			return
		}
		for _, child := range cur.Children {
			walk(child)
		}
	}
	walk(n)
	return docs
}

// PathTo returns the chain of nodes from n down to the node whose
// RelativePath equals target, or nil when target is not in the tree.
func (n *Node) PathTo(target string) []*Node {
	if n == nil {
		return nil
	}
	if n.RelativePath == target {
		return []*Node{n}
	}
	for _, child := range n.Children {
		if chain := child.PathTo(target); len(chain) > 0 {
			return append([]*Node{n}, chain...)
		}
	}
	return nil
}
