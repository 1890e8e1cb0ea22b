package storage

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/table"
)

func TestCreateGetDrop(t *testing.T) {
	m := NewMemory()
	tbl := table.NewTable([]string{"a"})
	k := Temporary("s1", "temp_a_1")
	if err := m.Create(k, tbl); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(k, tbl); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	got, err := m.Get(k)
	if err != nil || got != tbl {
		t.Errorf("unexpected get result %v, %v", got, err)
	}
	if _, err := m.Get(Temporary("s2", "temp_a_1")); !errors.Is(err, errs.ErrNotFound) {
		t.Error("tables are scoped to their session")
	}
	if err := m.Drop(k); err != nil {
		t.Fatal(err)
	}
	if err := m.Drop(k); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected not found on second drop, got %v", err)
	}
}

func TestNames(t *testing.T) {
	m := NewMemory()
	_ = m.Create(Persistent("roads"), table.NewTable(nil))
	_ = m.Create(Persistent("parcels"), table.NewTable(nil))
	_ = m.Create(Temporary("s1", "temp_x_1"), table.NewTable(nil))

	names := m.Names("")
	if len(names) != 2 || names[0] != "parcels" {
		t.Errorf("unexpected persistent names %v", names)
	}
	if names := m.Names("s1"); len(names) != 1 {
		t.Errorf("unexpected session names %v", names)
	}
}

func TestRenameSingleWinner(t *testing.T) {
	m := NewMemory()
	for _, n := range []string{"temp_a_1", "temp_b_2"} {
		if err := m.Create(Temporary("s1", n), table.NewTable(nil)); err != nil {
			t.Fatal(err)
		}
	}

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for _, n := range []string{"temp_a_1", "temp_b_2"} {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			err := m.Rename(Temporary("s1", n), Persistent("final"))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, errs.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error %v", err)
			}
		}(n)
	}
	wg.Wait()
	if wins.Load() != 1 || conflicts.Load() != 1 {
		t.Errorf("expected one winner and one conflict, got %d and %d", wins.Load(), conflicts.Load())
	}
	if m.Len() != 2 {
		t.Errorf("loser's temporary should remain, store has %d tables", m.Len())
	}
}
