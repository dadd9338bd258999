package engine

// Kind classifies a failure reported by the orchestrator, per the fixed
// error-kind set.
type Kind string

const (
	KindConfigError          Kind = "config-error"
	KindLockBusy             Kind = "lock-busy"
	KindMalformedFrontmatter Kind = "malformed-frontmatter"
	KindDuplicateIdentifier  Kind = "duplicate-identifier"
	KindWriteFailure         Kind = "write-failure"
	KindMergeUnresolved      Kind = "merge-unresolved"
)

// Error is the structured error type returned by engine operations. The
// underlying Cause is preserved for errors.Is/errors.As and logging; Kind
// lets callers (notably cmd/cast) choose an exit code without string
// matching.
type Error struct {
	Kind    Kind
	Vault   string // vault root this error pertains to, if any
	Path    string // document path this error pertains to, if any
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)

	if e.Vault != "" {
		msg += " vault=" + e.Vault
	}

	if e.Path != "" {
		msg += " path=" + e.Path
	}

	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, vault, path string, cause error) *Error {
	return &Error{Kind: kind, Vault: vault, Path: path, Cause: cause}
}
