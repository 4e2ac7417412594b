package report

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors elsewhere in the module wrap one of these so
// callers can classify failures with errors.Is.
var (
	ErrSchemaNotFound         = errors.New("schema not found")
	ErrUnknownComponentType   = errors.New("unknown component type")
	ErrStructuralViolation    = errors.New("structural violation")
	ErrMalformedDocument      = errors.New("malformed document")
	ErrTypeMismatch           = errors.New("type tag mismatch")
	ErrDanglingReference      = errors.New("dangling reference")
	ErrAmbiguousReference     = errors.New("ambiguous reference")
	ErrCacheSignatureMismatch = errors.New("cache signature mismatch")
	ErrCorpusRootMissing      = errors.New("corpus root missing")
)

// Kind is the explicit outcome of one batch item.
type Kind string

const (
	KindOK                     Kind = "ok"
	KindSchemaNotFound         Kind = "schema-not-found"
	KindUnknownComponentType   Kind = "unknown-type"
	KindStructuralViolation    Kind = "structural-violation"
	KindMalformedDocument      Kind = "malformed-document"
	KindTypeMismatch           Kind = "type-mismatch"
	KindDanglingReference      Kind = "dangling-reference"
	KindAmbiguousReference     Kind = "ambiguous-reference"
	KindCacheSignatureMismatch Kind = "cache-signature-mismatch"
	KindReadError              Kind = "read-error"
)

// KindOf maps an error to its Kind. A nil error is KindOK; errors outside the
// taxonomy (I/O failures) are KindReadError.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrSchemaNotFound):
		return KindSchemaNotFound
	case errors.Is(err, ErrUnknownComponentType):
		return KindUnknownComponentType
	case errors.Is(err, ErrTypeMismatch):
		return KindTypeMismatch
	case errors.Is(err, ErrMalformedDocument):
		return KindMalformedDocument
	case errors.Is(err, ErrStructuralViolation):
		return KindStructuralViolation
	case errors.Is(err, ErrDanglingReference):
		return KindDanglingReference
	case errors.Is(err, ErrAmbiguousReference):
		return KindAmbiguousReference
	case errors.Is(err, ErrCacheSignatureMismatch):
		return KindCacheSignatureMismatch
	default:
		return KindReadError
	}
}

// NotFoundError reports a component type with no schema in the store.
type NotFoundError struct {
	Type string
	Dir  string
}

func (e *NotFoundError) Error() string {
	if e.Dir == "" {
		return fmt.Sprintf("no schema for type %q", e.Type)
	}
	return fmt.Sprintf("no schema for type %q in %s", e.Type, e.Dir)
}

func (e *NotFoundError) Unwrap() error { return ErrSchemaNotFound }
