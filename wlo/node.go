package wlo

// Node is a repository node as returned by the metadata and search
// endpoints. Properties are multi-valued in the wire format; the
// accessors below collapse them to the first value.
type Node struct {
	Ref        NodeRef        `json:"ref"`
	Properties map[string]any `json:"properties"`
}

// NodeRef identifies a node.
type NodeRef struct {
	ID string `json:"id"`
}

// Title returns the node title, preferring the LOM title over the
// repository name.
func (n *Node) Title() string {
	return n.firstProperty("cclom:title", "cm:name", "cm:title")
}

// Description returns the node description.
func (n *Node) Description() string {
	return n.firstProperty("cclom:general_description", "cm:description")
}

// Keywords returns the node keyword list.
func (n *Node) Keywords() []string {
	raw, ok := n.Properties["cclom:general_keyword"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		keywords := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				keywords = append(keywords, s)
			}
		}
		return keywords
	}
	return nil
}

// URL returns the node content URL.
func (n *Node) URL() string {
	return n.firstProperty("ccm:wwwurl", "cclom:location")
}

// firstProperty returns the first non-empty value of the first present
// key, unwrapping list-valued properties.
func (n *Node) firstProperty(keys ...string) string {
	for _, key := range keys {
		raw, ok := n.Properties[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}
