package safe

import "testing"

func TestMustNotNil(t *testing.T) {
	mustPanic := func(f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		f()
	}

	mustPanic(func() { MustNotNil(nil, "dep") })

	var p *int
	mustPanic(func() { MustNotNil(p, "dep") })

	var m map[string]int
	mustPanic(func() { MustNotNil(m, "dep") })

	// non-nilable values pass
	MustNotNil(struct{}{}, "dep")
	MustNotNil("x", "dep")
	x := 1
	MustNotNil(&x, "dep")
}
