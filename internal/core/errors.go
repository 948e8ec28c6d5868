package core

import (
	"errors"
	"fmt"

	"github.com/git-pkgs/licenses/client"
)

// ErrNotFound is returned when a package or version is not found.
var ErrNotFound = client.ErrNotFound

// ErrNoMatch signals that no corpus entry reached the confidence threshold.
// The matcher reports this as an empty candidate list; the reconciler turns it
// into an unresolved package.
var ErrNoMatch = errors.New("no license matched above threshold")

// Registry errors live in the client package so ecosystems and the client
// share one definition.
type (
	HTTPError      = client.HTTPError
	NotFoundError  = client.NotFoundError
	RateLimitError = client.RateLimitError
)

// EmptyInputError is returned by the normalizer when a blob has no content.
type EmptyInputError struct {
	Label string
}

func (e *EmptyInputError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("license text %s is empty after normalization", e.Label)
	}
	return "license text is empty after normalization"
}

// MalformedDependencyError reports an input record that breaks the dependency invariant.
type MalformedDependencyError struct {
	Name    string
	Version string
	Reason  string
}

func (e *MalformedDependencyError) Error() string {
	name := e.Name
	if name == "" {
		name = "<unnamed>"
	}
	if e.Version != "" {
		return fmt.Sprintf("malformed dependency %s %s: %s", name, e.Version, e.Reason)
	}
	return fmt.Sprintf("malformed dependency %s: %s", name, e.Reason)
}

// CorpusLoadError means the reference corpus is missing, unreadable or empty.
// It is the only error that aborts a whole run.
type CorpusLoadError struct {
	Path string
	Err  error
}

func (e *CorpusLoadError) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("load license corpus %s: %v", e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("load license corpus: %v", e.Err)
	case e.Path != "":
		return fmt.Sprintf("load license corpus %s: no license texts found", e.Path)
	default:
		return "load license corpus: corpus is empty"
	}
}

func (e *CorpusLoadError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is a MalformedDependencyError.
func IsMalformed(err error) bool {
	var m *MalformedDependencyError
	return errors.As(err, &m)
}

// IsCorpusLoad reports whether err is a CorpusLoadError.
func IsCorpusLoad(err error) bool {
	var c *CorpusLoadError
	return errors.As(err, &c)
}
