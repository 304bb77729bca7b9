package di

import "testing"

func TestContainer_LazySingleton(t *testing.T) {
	c := NewContainer()
	calls := 0

	tok := NewToken[*int]("counter")
	RegisterToken(c, tok, func(ServiceRegistry) *int {
		calls++
		v := 7
		return &v
	})

	a := GetToken(c, tok)
	b := GetToken(c, tok)

	if a != b {
		t.Error("expected the same instance on every Get")
	}
	if calls != 1 {
		t.Errorf("factory called %d times, want 1", calls)
	}
}

func TestContainer_ResolvesDependencies(t *testing.T) {
	c := NewContainer()
	c.Register("base", 40)

	tok := NewToken[int]("derived")
	RegisterToken(c, tok, func(sr ServiceRegistry) int {
		return sr.Get("base").(int) + 2
	})

	if got := GetToken(c, tok); got != 42 {
		t.Errorf("derived = %d, want 42", got)
	}
}

func TestContainer_UnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown service")
		}
	}()
	NewContainer().Get("missing")
}
