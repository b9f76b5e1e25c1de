package stubgen

import (
	"fmt"

	"github.com/chazu/dynstub/pkg/shape"
)

// tracker forwards every instruction to the backend while simulating the
// stack depth, so that stage boundaries can be checked without trusting
// emission order.
type tracker struct {
	e Emitter

	depth    int
	maxDepth int

	stage Stage
	param int
	err   *GenerationError
}

func newTracker(e Emitter) *tracker {
	return &tracker{e: e, param: -1}
}

func (t *tracker) apply(in Instr) {
	pop, push := in.Effect()
	if pop > t.depth && t.err == nil {
		t.err = &GenerationError{
			Stage: t.stage,
			Param: t.param,
			Err:   fmt.Errorf("%w: %s pops %d with depth %d", ErrStackImbalance, in.Op, pop, t.depth),
		}
	}
	t.depth += push - pop
	if t.depth > t.maxDepth {
		t.maxDepth = t.depth
	}
}

// expect records an imbalance error unless the depth equals want.
func (t *tracker) expect(want int) {
	if t.depth != want && t.err == nil {
		t.err = &GenerationError{
			Stage: t.stage,
			Param: -1,
			Err:   fmt.Errorf("%w: depth %d after stage, want %d", ErrStackImbalance, t.depth, want),
		}
	}
}

func (t *tracker) DeclareLocal(kind LocalKind) Local {
	t.apply(Instr{Op: OpDeclareLocal})
	return t.e.DeclareLocal(kind)
}

func (t *tracker) NewArray(kind LocalKind, n int) {
	t.apply(Instr{Op: OpNewArray})
	t.e.NewArray(kind, n)
}

func (t *tracker) StoreLocal(l Local) {
	t.apply(Instr{Op: OpStoreLocal})
	t.e.StoreLocal(l)
}

func (t *tracker) LoadLocal(l Local) {
	t.apply(Instr{Op: OpLoadLocal})
	t.e.LoadLocal(l)
}

func (t *tracker) LoadInt(n int) {
	t.apply(Instr{Op: OpLoadInt})
	t.e.LoadInt(n)
}

func (t *tracker) LoadString(s string) {
	t.apply(Instr{Op: OpLoadString})
	t.e.LoadString(s)
}

func (t *tracker) LoadReceiver() {
	t.apply(Instr{Op: OpLoadReceiver})
	t.e.LoadReceiver()
}

func (t *tracker) LoadArg(i int) {
	t.apply(Instr{Op: OpLoadArg})
	t.e.LoadArg(i)
}

func (t *tracker) LoadIndirect(typ shape.Type, valueKind bool) {
	t.apply(Instr{Op: OpLoadIndirect})
	t.e.LoadIndirect(typ, valueKind)
}

func (t *tracker) StoreIndirect(typ shape.Type, valueKind bool) {
	t.apply(Instr{Op: OpStoreIndirect})
	t.e.StoreIndirect(typ, valueKind)
}

func (t *tracker) Box(typ shape.Type) {
	t.apply(Instr{Op: OpBox})
	t.e.Box(typ)
}

func (t *tracker) Unbox(typ shape.Type) {
	t.apply(Instr{Op: OpUnbox})
	t.e.Unbox(typ)
}

func (t *tracker) LoadElem() {
	t.apply(Instr{Op: OpLoadElem})
	t.e.LoadElem()
}

func (t *tracker) StoreElem() {
	t.apply(Instr{Op: OpStoreElem})
	t.e.StoreElem()
}

func (t *tracker) CallInterceptor() {
	t.apply(Instr{Op: OpCallInterceptor})
	t.e.CallInterceptor()
}

func (t *tracker) UnpackResults(results []shape.Result) {
	t.apply(Instr{Op: OpUnpackResults, Results: results})
	t.e.UnpackResults(results)
}

func (t *tracker) Pop() {
	t.apply(Instr{Op: OpPop})
	t.e.Pop()
}

func (t *tracker) Return(n int) {
	t.apply(Instr{Op: OpReturn, Int: n})
	t.e.Return(n)
}
