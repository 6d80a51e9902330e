package pipeline

import (
	"math/rand"
	"strings"
)

// SelectTerms returns the configured terms when there are any, otherwise a
// random sample of size n from defaults.
func SelectTerms(configured, defaults []string, n int, rng *rand.Rand) []string {
	if terms := cleanTerms(configured); len(terms) > 0 {
		return terms
	}

	pool := cleanTerms(defaults)
	if n <= 0 || n >= len(pool) {
		return pool
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:n]
}

func cleanTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
