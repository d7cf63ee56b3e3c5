// Package errs defines the pipeline's error taxonomy (spec §7): typed
// errors distinguishing configuration, resolution, node-work, and
// cache-store failures so callers can errors.As on the category they care
// about, and so the top-level runner can print a single line naming the
// failing node.
package errs

import "fmt"

// ConfigError reports a configuration-time failure detected before
// execution: an unknown explicit dependency, a cycle, or a duplicate node
// name.
type ConfigError struct {
	Node string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Node == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Node, e.Msg)
}

// NewConfigError builds a ConfigError.
func NewConfigError(node, format string, args ...any) *ConfigError {
	return &ConfigError{Node: node, Msg: fmt.Sprintf(format, args...)}
}

// ResolutionError reports a failure resolving an Input: a glob matched
// nothing, an upstream node has not run or produced no outputs, or a glob
// filter emptied the set.
type ResolutionError struct {
	Node string
	Msg  string
}

func (e *ResolutionError) Error() string {
	if e.Node == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Node, e.Msg)
}

// NewResolutionError builds a ResolutionError.
func NewResolutionError(node, format string, args ...any) *ResolutionError {
	return &ResolutionError{Node: node, Msg: fmt.Sprintf(format, args...)}
}

// NodeError reports a fatal error raised by a node's Run. The pipeline
// stops immediately; partial outputs are discarded and never cached.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// NewNodeError wraps err as a fatal node-work error for node.
func NewNodeError(node string, err error) *NodeError {
	return &NodeError{Node: node, Err: err}
}

// CacheError reports a cache-store failure. Unreadable or corrupt entries
// are never wrapped in CacheError (they are treated as a plain miss); only
// write failures are fatal and surfaced this way.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError wraps err as a fatal cache-store error for the given operation.
func NewCacheError(op string, err error) *CacheError {
	return &CacheError{Op: op, Err: err}
}
