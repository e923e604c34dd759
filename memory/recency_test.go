package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/kv/inmem"
)

var joinSummary = memory.SummarizerFunc(func(u, a string) string { return u + " | " + a })

// readOnlyKV serves reads from an inmem store and fails writes.
type readOnlyKV struct {
	*inmem.Store
}

func (readOnlyKV) Set(context.Context, string, []byte) error { return errors.New("read only") }

// repeatingKV reports every key twice, like a Redis SCAN that revisits keys.
type repeatingKV struct {
	*inmem.Store
}

func (r repeatingKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := r.Store.Keys(ctx, prefix)
	return append(keys, keys...), err
}

func TestRecencyStore_LoadMissing(t *testing.T) {
	s := memory.NewRecencyStore(inmem.New(), joinSummary, 5)
	got, err := s.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Load() = %#v, want empty non-nil slice", got)
	}
}

func TestRecencyStore_CompressesPair(t *testing.T) {
	ctx := context.Background()
	kv := inmem.New()
	s := memory.NewRecencyStore(kv, joinSummary, 5)

	if _, compressed, err := s.Append(ctx, "c1", core.NewUserTurn("q")); err != nil || compressed {
		t.Fatalf("Append(user) = %v, %v", compressed, err)
	}
	summary, compressed, err := s.Append(ctx, "c1", core.NewAssistantTurn("a"))
	if err != nil || !compressed || summary != "q | a" {
		t.Fatalf("Append(assistant) = %q, %v, %v", summary, compressed, err)
	}

	raw, _ := kv.Get(ctx, memory.ConversationKey("c1"))
	if string(raw) != `[{"role":"memory","content":"q | a"}]` {
		t.Errorf("stored log = %s", raw)
	}
}

func TestRecencyStore_DropsUnpairedAssistant(t *testing.T) {
	ctx := context.Background()
	s := memory.NewRecencyStore(inmem.New(), joinSummary, 5)

	summary, compressed, err := s.Append(ctx, "c1", core.NewAssistantTurn("orphan"))
	if err != nil || compressed || summary != "" {
		t.Fatalf("Append() = %q, %v, %v", summary, compressed, err)
	}
	history, _ := s.Load(ctx, "c1")
	if len(history) != 0 {
		t.Errorf("history = %+v, want empty", history)
	}
}

func TestRecencyStore_TruncatesToCap(t *testing.T) {
	ctx := context.Background()
	s := memory.NewRecencyStore(inmem.New(), joinSummary, 2)

	for _, q := range []string{"1", "2", "3"} {
		if _, _, err := s.Append(ctx, "c1", core.NewUserTurn(q)); err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.Append(ctx, "c1", core.NewAssistantTurn("r"+q)); err != nil {
			t.Fatal(err)
		}
	}
	history, _ := s.Load(ctx, "c1")
	want := []core.Turn{core.NewMemoryTurn("2 | r2"), core.NewMemoryTurn("3 | r3")}
	if len(history) != 2 || history[0] != want[0] || history[1] != want[1] {
		t.Errorf("history = %+v, want %+v", history, want)
	}

	// Consecutive user turns are kept until the cap evicts the oldest entry.
	for _, q := range []string{"x", "y"} {
		if _, _, err := s.Append(ctx, "c1", core.NewUserTurn(q)); err != nil {
			t.Fatal(err)
		}
	}
	history, _ = s.Load(ctx, "c1")
	if len(history) != 2 || history[0] != core.NewUserTurn("x") || history[1] != core.NewUserTurn("y") {
		t.Errorf("history = %+v", history)
	}
}

func TestRecencyStore_CorruptLog(t *testing.T) {
	ctx := context.Background()
	kv := inmem.New()
	_ = kv.Set(ctx, memory.ConversationKey("c1"), []byte("{broken"))
	s := memory.NewRecencyStore(kv, joinSummary, 5)

	_, err := s.Load(ctx, "c1")
	var storeErr *memory.StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "decode" {
		t.Fatalf("Load() error = %v, want decode StoreError", err)
	}
}

func TestRecencyStore_SummaryReturnedWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	base := inmem.New()
	s := memory.NewRecencyStore(base, joinSummary, 5)
	if _, _, err := s.Append(ctx, "c1", core.NewUserTurn("q")); err != nil {
		t.Fatal(err)
	}

	ro := memory.NewRecencyStore(readOnlyKV{base}, joinSummary, 5)
	summary, compressed, err := ro.Append(ctx, "c1", core.NewAssistantTurn("a"))
	var storeErr *memory.StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "set" {
		t.Fatalf("Append() error = %v, want set StoreError", err)
	}
	if !compressed || summary != "q | a" {
		t.Errorf("Append() = %q, %v, want the summary", summary, compressed)
	}
}

func TestRecencyStore_ConversationsAndDelete(t *testing.T) {
	ctx := context.Background()
	kv := inmem.New()
	_ = kv.Set(ctx, "other:key", []byte("x"))
	s := memory.NewRecencyStore(kv, joinSummary, 5)

	for _, id := range []string{"zeta", "alpha"} {
		if _, _, err := s.Append(ctx, id, core.NewUserTurn("hi")); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.Conversations(ctx)
	if err != nil || len(ids) != 2 || ids[0] != "alpha" || ids[1] != "zeta" {
		t.Fatalf("Conversations() = %v, %v", ids, err)
	}

	if err := s.Delete(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "alpha"); err != nil {
		t.Errorf("deleting twice should succeed: %v", err)
	}
	ids, _ = s.Conversations(ctx)
	if len(ids) != 1 || ids[0] != "zeta" {
		t.Errorf("Conversations() = %v, want [zeta]", ids)
	}
}

func TestRecencyStore_ConversationsDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := memory.NewRecencyStore(repeatingKV{inmem.New()}, joinSummary, 5)

	for _, id := range []string{"b", "a", "c"} {
		if _, _, err := s.Append(ctx, id, core.NewUserTurn("hi")); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.Conversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("Conversations() = %v, want [a b c]", ids)
	}
}
