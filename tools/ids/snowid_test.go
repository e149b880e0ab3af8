package ids

import (
	"sync"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	const workers, per = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*per)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id := GenerateString()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*per {
		t.Fatalf("duplicate ids: got %d unique of %d", len(seen), workers*per)
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		GenerateString():       true,
		"1001":                 true,
		"":                     false,
		"0":                    false,
		"-5":                   false,
		"12a":                  false,
		"64b7f0c2e4b0a1a2b3c4": false,
		"99999999999999999999": false,
	}
	for in, want := range cases {
		if got := Valid(in); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}
