// Package model defines the pipeline's data model: the entities a pipeline
// author constructs a Node out of (FileRef, NodeOutputRef, Input, Config)
// and the per-item result a Node reports (NodeOutput).
package model

// FileRef is a stable, opaque handle to a single file on disk.
//
// Semantics: "watch this file as a dependency." A FileRef is created by the
// pipeline author and is never owned or mutated by a node.
type FileRef struct {
	Path string
}

// NewFileRef creates a FileRef for the given path.
func NewFileRef(path string) FileRef {
	return FileRef{Path: path}
}

// NodeOutputRef references one keyed output set of another node, optionally
// narrowed by a glob pattern.
type NodeOutputRef struct {
	NodeName string
	Key      string
	Glob     string // empty means no filter
}

// NewNodeOutputRef creates a reference to the given node's output under key.
func NewNodeOutputRef(nodeName, key string) NodeOutputRef {
	return NodeOutputRef{NodeName: nodeName, Key: key}
}

// WithGlob returns a copy of the reference narrowed by glob.
func (r NodeOutputRef) WithGlob(glob string) NodeOutputRef {
	r.Glob = glob
	return r
}

// HasGlob reports whether the reference carries a glob filter.
func (r NodeOutputRef) HasGlob() bool {
	return r.Glob != ""
}

// Value wraps a single entry of a node's processing config. It may carry a
// FileRef or NodeOutputRef (recognised structurally, per the tagged-shape
// design note), or be a plain value that only participates in the content
// signature via its JSON serialisation.
type Value struct {
	Raw           any
	FileRef       *FileRef
	NodeOutputRef *NodeOutputRef
}

// Plain wraps an ordinary config value that carries no file/dependency identity.
func Plain(v any) Value {
	return Value{Raw: v}
}

// FromFileRef wraps a FileRef as a config value.
func FromFileRef(f FileRef) Value {
	return Value{FileRef: &f}
}

// FromNodeOutputRef wraps a NodeOutputRef as a config value.
func FromNodeOutputRef(r NodeOutputRef) Value {
	return Value{NodeOutputRef: &r}
}

// IsFileRef reports whether this value carries a FileRef.
func (v Value) IsFileRef() bool { return v.FileRef != nil }

// IsNodeOutputRef reports whether this value carries a NodeOutputRef.
func (v Value) IsNodeOutputRef() bool { return v.NodeOutputRef != nil }

// Config is a node's processing configuration: a mapping from string keys to
// values, where any value may wrap a FileRef or NodeOutputRef. Only Config
// contributes to a node's content signature.
type Config map[string]Value

// OutputConfig is a node's presentation-only configuration (output
// directory, filename mapping, extension, ...). It deliberately does not
// participate in the content signature.
type OutputConfig map[string]any

// NodeOutput is one entry of a node's reported results: a mapping from
// output key to the list of file paths produced under that key. A node
// returns one NodeOutput per processed item, or a single aggregate entry
// for a no-source node.
type NodeOutput map[string][]string
