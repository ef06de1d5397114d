package revision

import "testing"

func TestCounterNext(t *testing.T) {
	c := New(0)
	if got := c.Current(); got != 0 {
		t.Fatalf("Current() = %d, want 0", got)
	}

	for i := int64(1); i <= 5; i++ {
		if got := c.Next(); got != i {
			t.Fatalf("Next() = %d, want %d", got, i)
		}
		if got := c.Current(); got != i {
			t.Fatalf("Current() after Next() = %d, want %d", got, i)
		}
	}
}

func TestCounterResumesFromStart(t *testing.T) {
	c := New(41)
	if got := c.Next(); got != 42 {
		t.Fatalf("Next() = %d, want 42", got)
	}
}

func TestCounterSetIfHigher(t *testing.T) {
	c := New(10)
	c.SetIfHigher(5)
	if got := c.Current(); got != 10 {
		t.Fatalf("SetIfHigher(5) on counter at 10 = %d, want 10 (no-op)", got)
	}
	c.SetIfHigher(20)
	if got := c.Current(); got != 20 {
		t.Fatalf("SetIfHigher(20) = %d, want 20", got)
	}
}

func TestRevisionLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Revision
		want bool
	}{
		{"lower main", Revision{Main: 1, Sub: 5}, Revision{Main: 2, Sub: 0}, true},
		{"equal main, lower sub", Revision{Main: 2, Sub: 0}, Revision{Main: 2, Sub: 1}, true},
		{"equal", Revision{Main: 2, Sub: 1}, Revision{Main: 2, Sub: 1}, false},
		{"higher main", Revision{Main: 3, Sub: 0}, Revision{Main: 2, Sub: 9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.want {
				t.Errorf("Less() = %v, want %v", got, tt.want)
			}
		})
	}
}
