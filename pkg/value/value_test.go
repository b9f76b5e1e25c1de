package value

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestUnbox(t *testing.T) {
	readerT := reflect.TypeOf((*io.Reader)(nil)).Elem()
	anyT := reflect.TypeOf((*any)(nil)).Elem()
	buf := new(bytes.Buffer)

	tests := []struct {
		name    string
		g       any
		t       reflect.Type
		want    any
		wantErr bool
	}{
		{"exact", 7, reflect.TypeOf(0), 7, false},
		{"interface", buf, readerT, buf, false},
		{"empty interface", "x", anyT, "x", false},
		{"nil pointer", nil, reflect.TypeOf((*int)(nil)), (*int)(nil), false},
		{"nil slice", nil, reflect.TypeOf([]byte(nil)), []byte(nil), false},
		{"nil interface", nil, readerT, nil, false},
		{"nil int", nil, reflect.TypeOf(0), nil, true},
		{"no widening", int32(7), reflect.TypeOf(int64(0)), nil, true},
		{"not implemented", 7, readerT, nil, true},
		{"named vs underlying", myInt(1), reflect.TypeOf(0), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Unbox(tt.g, tt.t)
			if tt.wantErr {
				var me *MismatchError
				if !errors.As(err, &me) {
					t.Fatalf("err = %v, want *MismatchError", err)
				}
				if me.Want != tt.t.String() {
					t.Errorf("Want = %q, want %q", me.Want, tt.t.String())
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if v.Type() != tt.t {
				t.Errorf("type = %v, want %v", v.Type(), tt.t)
			}
			if got := v.Interface(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("value = %#v, want %#v", got, tt.want)
			}
		})
	}
}

type myInt int

func TestBox(t *testing.T) {
	if Box(reflect.Value{}) != nil {
		t.Error("Box(invalid) != nil")
	}
	if Box(reflect.ValueOf(3)) != 3 {
		t.Error("Box(3) != 3")
	}
	var r io.Reader
	if Box(reflect.ValueOf(&r).Elem()) != nil {
		t.Error("Box(nil interface) != nil")
	}
}

func TestAs(t *testing.T) {
	if As[int](5) != 5 {
		t.Error("As[int](5)")
	}
	if As[error](nil) != nil {
		t.Error("As[error](nil)")
	}
	if As[[]int](nil) != nil {
		t.Error("As[[]int](nil)")
	}

	defer func() {
		me, ok := recover().(*MismatchError)
		if !ok {
			t.Fatalf("recovered %v, want *MismatchError", me)
		}
		if me.Want != "int" || me.Got != "five" {
			t.Errorf("mismatch = %+v", me)
		}
	}()
	As[int]("five")
	t.Error("As did not panic")
}

func TestDeref(t *testing.T) {
	n := 4
	if got := Deref(&n); got != 4 {
		t.Errorf("Deref(&4) = %d, want 4", got)
	}

	defer func() {
		if r := recover(); r != ErrNilReference {
			t.Errorf("recovered %v, want ErrNilReference", r)
		}
	}()
	var p *int
	Deref(p)
	t.Error("Deref(nil) did not panic")
}

func TestStore(t *testing.T) {
	x := 1
	if err := Store(reflect.ValueOf(&x), 2); err != nil || x != 2 {
		t.Errorf("Store = %v, x = %d", err, x)
	}
	if err := Store(reflect.ValueOf(&x), "two"); err == nil || x != 2 {
		t.Errorf("Store of string = %v, x = %d", err, x)
	}
	if err := Store(reflect.ValueOf((*int)(nil)), 3); !errors.Is(err, ErrNilReference) {
		t.Errorf("Store through nil = %v", err)
	}
	if err := Store(reflect.ValueOf(x), 3); err == nil {
		t.Error("Store through non-pointer succeeded")
	}

	var a any = "before"
	if err := Store(reflect.ValueOf(&a), nil); err != nil || a != nil {
		t.Errorf("Store nil into any = %v, a = %v", err, a)
	}
}

func TestUnpackTuple(t *testing.T) {
	if tup, err := UnpackTuple(Tuple{1, "a"}, 2); err != nil || len(tup) != 2 {
		t.Errorf("UnpackTuple(Tuple) = %v, %v", tup, err)
	}
	if tup, err := UnpackTuple([]any{1, "a"}, 2); err != nil || tup[1] != "a" {
		t.Errorf("UnpackTuple([]any) = %v, %v", tup, err)
	}

	for _, g := range []any{Tuple{1}, 5, nil, []int{1, 2}} {
		_, err := UnpackTuple(g, 2)
		var me *MismatchError
		if !errors.As(err, &me) {
			t.Errorf("UnpackTuple(%v) = %v, want *MismatchError", g, err)
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("Unpack did not panic")
		}
	}()
	Unpack(Tuple{}, 1)
}

func TestMismatchErrorMessage(t *testing.T) {
	tests := []struct {
		err  *MismatchError
		want string
	}{
		{&MismatchError{Want: "int"}, "cannot use nil as int"},
		{&MismatchError{Want: "int", Got: "x", Where: "Add"}, `Add: cannot use x (string) as int`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); !strings.Contains(got, tt.want) {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
