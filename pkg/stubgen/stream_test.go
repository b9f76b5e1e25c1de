package stubgen

import (
	"strings"
	"testing"

	"github.com/chazu/dynstub/pkg/shape"
)

func TestAllOpsHaveMetadata(t *testing.T) {
	ops := AllOps()
	if len(ops) != int(OpReturn)+1 {
		t.Errorf("AllOps() has %d ops, want %d", len(ops), int(OpReturn)+1)
	}
	for _, op := range ops {
		if name := op.String(); name == "" || strings.HasPrefix(name, "UNKNOWN") {
			t.Errorf("Op %d has no metadata", op)
		}
	}
	if !strings.HasPrefix(Op(200).String(), "UNKNOWN") {
		t.Errorf("Op(200) = %q", Op(200))
	}
}

func TestInstrEffect(t *testing.T) {
	tests := []struct {
		in        Instr
		pop, push int
	}{
		{Instr{Op: OpDeclareLocal}, 0, 0},
		{Instr{Op: OpLoadArg, Int: 3}, 0, 1},
		{Instr{Op: OpStoreElem}, 3, 0},
		{Instr{Op: OpCallInterceptor}, 4, 1},
		{Instr{Op: OpUnpackResults, Results: make([]shape.Result, 3)}, 1, 3},
		{Instr{Op: OpReturn, Int: 2}, 2, 0},
		{Instr{Op: OpReturn}, 0, 0},
	}
	for _, tt := range tests {
		pop, push := tt.in.Effect()
		if pop != tt.pop || push != tt.push {
			t.Errorf("%s effect = (%d, %d), want (%d, %d)", tt.in.Op, pop, push, tt.pop, tt.push)
		}
	}
}

func TestStreamReplay(t *testing.T) {
	for name, fn := range map[string]any{
		"Add":  func(int, *int) int { return 0 },
		"Read": func([]byte) (int, error) { return 0, nil },
		"Swap": func(*any) {},
	} {
		s, err := Generate(methodOf(t, name, fn))
		if err != nil {
			t.Fatal(err)
		}

		copied := NewStream(name)
		if err := s.Replay(copied); err != nil {
			t.Fatalf("Replay(%s): %v", name, err)
		}
		if copied.String() != s.String() {
			t.Errorf("%s replay differs\n got:\n%s\nwant:\n%s", name, copied, s)
		}
	}
}

func TestStreamReplayReportsBackendError(t *testing.T) {
	s, err := Generate(methodOf(t, "Log", func(string) {}))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Replay(&failing{Stream: NewStream("Log"), limit: 1}); err == nil {
		t.Error("Replay ignored backend error")
	}
}

func TestStreamString(t *testing.T) {
	s := NewStream("M")
	l := s.DeclareLocal(LocalValues)
	s.NewArray(LocalValues, 0)
	s.StoreLocal(l)
	s.LoadString("a\tb")

	want := "; === M ===\n" +
		"0000  DECLARE_LOCAL values\n" +
		"0001  NEW_ARRAY values[0]\n" +
		"0002  STORE_LOCAL 0 ; values\n" +
		"0003  LOAD_STRING \"a\\tb\"\n"
	if got := s.String(); got != want {
		t.Errorf("String() =\n%s\nwant:\n%s", got, want)
	}
}
