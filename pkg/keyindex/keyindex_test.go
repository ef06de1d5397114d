package keyindex

import (
	"bytes"
	"testing"
)

func TestInsertOrUpdateNewKey(t *testing.T) {
	idx := New()
	e := idx.InsertOrUpdate([]byte("user/alice"), 1, 0)
	if e.Version != 1 {
		t.Fatalf("Version = %d, want 1", e.Version)
	}
	if e.CreateRev.Main != 1 || e.ModRev.Main != 1 {
		t.Fatalf("CreateRev/ModRev = %+v, want main=1", e)
	}
}

func TestInsertOrUpdatePreservesCreateRev(t *testing.T) {
	idx := New()
	idx.InsertOrUpdate([]byte("user/alice"), 1, 0)
	e := idx.InsertOrUpdate([]byte("user/alice"), 5, 0)
	if e.CreateRev.Main != 1 {
		t.Fatalf("CreateRev.Main = %d, want 1 (preserved)", e.CreateRev.Main)
	}
	if e.ModRev.Main != 5 {
		t.Fatalf("ModRev.Main = %d, want 5", e.ModRev.Main)
	}
	if e.Version != 2 {
		t.Fatalf("Version = %d, want 2", e.Version)
	}
}

func TestGetSingleKey(t *testing.T) {
	idx := New()
	idx.InsertOrUpdate([]byte("user/alice"), 1, 0)

	got := idx.Get([]byte("user/alice"), nil, 0)
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}

	got = idx.Get([]byte("user/bob"), nil, 0)
	if len(got) != 0 {
		t.Fatalf("len(got) = %d, want 0 for missing key", len(got))
	}
}

func TestGetRangeScan(t *testing.T) {
	idx := New()
	idx.InsertOrUpdate([]byte("user/alice"), 1, 0)
	idx.InsertOrUpdate([]byte("user/bob"), 2, 0)
	idx.InsertOrUpdate([]byte("role/dev"), 3, 0)

	rangeEnd := Prefix([]byte("user/"))
	got := idx.Get([]byte("user/"), rangeEnd, 0)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2, got %+v", len(got), got)
	}
	if string(got[0].Key) != "user/alice" || string(got[1].Key) != "user/bob" {
		t.Fatalf("unexpected scan order: %+v", got)
	}
}

func TestGetExcludesDeleted(t *testing.T) {
	idx := New()
	idx.InsertOrUpdate([]byte("user/alice"), 1, 0)
	idx.Delete([]byte("user/alice"), nil, 2, 0)

	got := idx.Get([]byte("user/alice"), nil, 0)
	if len(got) != 0 {
		t.Fatalf("len(got) = %d, want 0 after delete", len(got))
	}
}

func TestDeleteRangeStampsSequentialSubRevisions(t *testing.T) {
	idx := New()
	idx.InsertOrUpdate([]byte("user/alice"), 1, 0)
	idx.InsertOrUpdate([]byte("user/bob"), 1, 1)

	revs := idx.Delete([]byte("user/"), Prefix([]byte("user/")), 5, 1)
	if len(revs) != 2 {
		t.Fatalf("len(revs) = %d, want 2", len(revs))
	}
	if revs[0].Sub != 1 || revs[1].Sub != 2 {
		t.Fatalf("unexpected sub revisions: %+v", revs)
	}
}

func TestPrefixSuccessor(t *testing.T) {
	tests := []struct {
		in, want []byte
	}{
		{[]byte("user/"), []byte("user0")},
		{[]byte{0x01}, []byte{0x02}},
		{[]byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, nil},
	}
	for _, tt := range tests {
		got := Prefix(tt.in)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Prefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRevLimitExcludesNewerRevisions(t *testing.T) {
	idx := New()
	idx.InsertOrUpdate([]byte("user/alice"), 10, 0)

	if got := idx.Get([]byte("user/alice"), nil, 5); len(got) != 0 {
		t.Fatalf("len(got) = %d, want 0 when revLimit < ModRev", len(got))
	}
	if got := idx.Get([]byte("user/alice"), nil, 10); len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1 when revLimit == ModRev", len(got))
	}
}
