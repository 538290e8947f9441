package ids

import (
	"sort"
	"sync"
	"testing"
)

func TestNewIsUniqueAndSortable(t *testing.T) {
	const n = 1000
	seen := make(map[string]struct{}, n)
	var out []string
	for i := 0; i < n; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected id length %d for %q", len(id), id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if !sort.StringsAreSorted(out) {
		t.Fatalf("ids generated in sequence must sort in generation order")
	}
}

func TestNewIsSafeForConcurrentUse(t *testing.T) {
	const workers, per = 8, 200
	var (
		mu  sync.Mutex
		all = make(map[string]struct{}, workers*per)
		wg  sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, New())
			}
			mu.Lock()
			for _, id := range local {
				all[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(all) != workers*per {
		t.Fatalf("expected %d unique ids, got %d", workers*per, len(all))
	}
}

func TestTimeRoundTrip(t *testing.T) {
	id := New()
	ts, err := Time(id)
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if ts.IsZero() {
		t.Fatalf("expected embedded timestamp")
	}
	if _, err := Time("not-a-ulid"); err == nil {
		t.Fatalf("expected parse error")
	}
}
