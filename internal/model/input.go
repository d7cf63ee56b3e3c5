package model

// InputKind discriminates the three Input variants.
type InputKind int

const (
	// InputKindGlob is a single glob pattern string.
	InputKindGlob InputKind = iota
	// InputKindList is an ordered list of Input, flattened on resolution.
	InputKindList
	// InputKindNodeOutputRef references an upstream node's output.
	InputKindNodeOutputRef
)

// Input is a sum type over three resolution strategies: a glob string, a
// list of Input (flattened, order preserved), or a NodeOutputRef.
//
// Resolution of Input is implemented in package resolve; Input itself only
// carries the tagged shape, kept as a small immutable value type.
type Input struct {
	kind InputKind
	glob string
	list []Input
	ref  NodeOutputRef
}

// Glob constructs a single-glob-string Input.
func Glob(pattern string) Input {
	return Input{kind: InputKindGlob, glob: pattern}
}

// List constructs a list Input. Resolution flattens nested lists in order.
func List(inputs ...Input) Input {
	return Input{kind: InputKindList, list: inputs}
}

// FromOutput constructs a NodeOutputRef Input.
func FromOutput(ref NodeOutputRef) Input {
	return Input{kind: InputKindNodeOutputRef, ref: ref}
}

// Kind reports which variant this Input holds.
func (in Input) Kind() InputKind { return in.kind }

// GlobPattern returns the glob string; valid only when Kind() == InputKindGlob.
func (in Input) GlobPattern() string { return in.glob }

// List returns the nested list; valid only when Kind() == InputKindList.
func (in Input) List() []Input { return in.list }

// OutputRef returns the NodeOutputRef; valid only when Kind() == InputKindNodeOutputRef.
func (in Input) OutputRef() NodeOutputRef { return in.ref }

// IsZero reports whether this Input was never constructed (the "absent items" case).
func (in Input) IsZero() bool {
	return in.kind == InputKindGlob && in.glob == "" && in.list == nil
}
