package stubgen

import (
	"errors"
	"fmt"
)

var (
	// ErrStackImbalance reports a stage whose emitted instructions do not
	// leave the stack at the depth that stage is required to.
	ErrStackImbalance = errors.New("stack imbalance")

	// ErrUnsupportedShape reports a method shape the generator cannot stub.
	ErrUnsupportedShape = errors.New("unsupported method shape")
)

// Stage identifies one of the fixed emission stages of a stub body.
type Stage uint8

const (
	StageValidate Stage = iota
	StageSlots
	StageNames
	StageValues
	StageInvoke
	StageCoerce
	StageWriteback
	StageEpilogue
)

func (s Stage) String() string {
	switch s {
	case StageValidate:
		return "validate"
	case StageSlots:
		return "slots"
	case StageNames:
		return "names"
	case StageValues:
		return "values"
	case StageInvoke:
		return "invoke"
	case StageCoerce:
		return "coerce"
	case StageWriteback:
		return "writeback"
	case StageEpilogue:
		return "epilogue"
	default:
		return fmt.Sprintf("Stage(%d)", s)
	}
}

// GenerationError is a build-time failure identifying the offending method
// and, where one is involved, the parameter.
type GenerationError struct {
	Method string
	Param  int // -1 when no single parameter is at fault
	Stage  Stage
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Param >= 0 {
		return fmt.Sprintf("stubgen: %s param %d (%s): %v", e.Method, e.Param, e.Stage, e.Err)
	}
	return fmt.Sprintf("stubgen: %s (%s): %v", e.Method, e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
