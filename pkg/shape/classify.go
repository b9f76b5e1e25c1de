package shape

import (
	"go/types"
	"reflect"
)

// Classifier decides how a declared type crosses the interceptor boundary.
type Classifier interface {
	// IsValueKind reports whether values of t must be boxed into any and
	// unboxed back out of it.
	IsValueKind(t Type) bool

	// IsByRef reports whether a parameter of type t is passed by reference,
	// meaning the stub snapshots *p before the call and writes it back after.
	IsByRef(t Type) bool
}

// ByRefPolicy selects which parameters DefaultClassifier treats as by-ref.
type ByRefPolicy uint8

const (
	// ByRefPointers treats every pointer parameter as by-reference: the
	// interceptor sees a copy of *p and the stub writes the copy back after
	// the call. This includes struct pointers such as *bytes.Buffer, which
	// are copied by value, and optional pointers, for which nil fails with
	// value.ErrNilReference. Use ByRefNone for APIs that pass pointers as
	// handles.
	ByRefPointers ByRefPolicy = iota

	// ByRefNone passes pointers through as ordinary values.
	ByRefNone
)

// String returns the manifest spelling of the policy.
func (p ByRefPolicy) String() string {
	switch p {
	case ByRefPointers:
		return "pointers"
	case ByRefNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseByRefPolicy parses the manifest spelling of a policy. The empty
// string selects ByRefPointers.
func ParseByRefPolicy(s string) (ByRefPolicy, bool) {
	switch s {
	case "", "pointers":
		return ByRefPointers, true
	case "none":
		return ByRefNone, true
	}
	return ByRefPointers, false
}

// DefaultClassifier treats the empty interface as the only reference-kind
// type: it is the one type that moves into and out of any without a
// conversion. Everything else, including non-empty interfaces, is value-kind.
type DefaultClassifier struct {
	Policy ByRefPolicy
}

// IsValueKind implements Classifier.
func (c DefaultClassifier) IsValueKind(t Type) bool {
	return !isEmptyInterface(t)
}

// IsByRef implements Classifier.
func (c DefaultClassifier) IsByRef(t Type) bool {
	if c.Policy == ByRefNone {
		return false
	}
	return t.Elem() != nil
}

func isEmptyInterface(t Type) bool {
	switch tt := t.(type) {
	case ReflectType:
		return tt.T.Kind() == reflect.Interface && tt.T.NumMethod() == 0
	case GoType:
		iface, ok := tt.T.Underlying().(*types.Interface)
		return ok && iface.Empty()
	}
	return false
}
