package cache

import (
	"fmt"
	"testing"
)

func TestAddFirstArrivalWins(t *testing.T) {
	b := NewBounded[string, string]()
	if !b.Add("a", "first", 1) {
		t.Fatal("first Add returned false")
	}
	if b.Add("a", "second", 2) {
		t.Fatal("duplicate Add returned true")
	}
	v, _ := b.Get("a")
	if v != "first" {
		t.Errorf("value = %q, want first", v)
	}
	if ts, _ := b.CreatedAt("a"); ts != 1 {
		t.Errorf("createdAt = %d, want 1", ts)
	}
}

func TestEvictCeilingWithProtectedSet(t *testing.T) {
	tests := []struct {
		name      string
		ceiling   int
		protected []int // created_at values of protected entries
		extra     int
	}{
		{"no protection", 10, nil, 5},
		{"some protected", 10, []int{0, 3, 7}, 8},
		{"protected oldest", 5, []int{0, 1}, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBounded[string, int]()
			total := tt.ceiling + tt.extra
			for i := 0; i < total; i++ {
				b.Add(fmt.Sprintf("k%03d", i), i, int64(i))
			}
			prot := make(map[string]bool)
			for _, i := range tt.protected {
				prot[fmt.Sprintf("k%03d", i)] = true
			}

			evicted := b.Evict(tt.ceiling, func(k string) bool { return prot[k] })

			if b.Len() != tt.ceiling {
				t.Fatalf("len = %d, want %d", b.Len(), tt.ceiling)
			}
			if len(evicted) != tt.extra {
				t.Fatalf("evicted %d, want %d", len(evicted), tt.extra)
			}
			for k := range prot {
				if !b.Has(k) {
					t.Errorf("protected %s evicted", k)
				}
			}
			// The newest ceiling-|P| unprotected entries survive
			want := tt.ceiling - len(prot)
			kept := 0
			for i := total - 1; i >= 0 && kept < want; i-- {
				k := fmt.Sprintf("k%03d", i)
				if prot[k] {
					continue
				}
				if !b.Has(k) {
					t.Errorf("recent unprotected %s evicted", k)
				}
				kept++
			}
			for i := 1; i < len(evicted); i++ {
				if evicted[i-1] > evicted[i] {
					t.Errorf("evicted not oldest first: %v", evicted)
					break
				}
			}
		})
	}
}

func TestEvictAllProtectedOverflows(t *testing.T) {
	b := NewBounded[string, int]()
	for i := 0; i < 6; i++ {
		b.Add(fmt.Sprintf("k%d", i), i, int64(i))
	}
	evicted := b.Evict(3, func(string) bool { return true })
	if len(evicted) != 0 || b.Len() != 6 {
		t.Errorf("evicted=%v len=%d, want nothing evicted", evicted, b.Len())
	}
}

func TestEvictUnderCeilingNoop(t *testing.T) {
	b := NewBounded[string, int]()
	b.Add("a", 1, 1)
	if ev := b.Evict(5, nil); ev != nil {
		t.Errorf("evicted %v under ceiling", ev)
	}
}

func TestKeysTieBreakByKey(t *testing.T) {
	b := NewBounded[string, int]()
	b.Add("b", 0, 5)
	b.Add("a", 0, 5)
	b.Add("c", 0, 1)
	got := b.Keys()
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", got, want)
		}
	}
}
