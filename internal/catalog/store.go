package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	lev "github.com/agnivade/levenshtein"
)

var (
	// ErrNotFound is returned when no planet or host matches a name.
	ErrNotFound = errors.New("system not found in catalog")
	// ErrNoData is returned when no dataset has been loaded yet.
	ErrNoData = errors.New("catalog not loaded")
)

// Store provides thread-safe access to the current dataset.
type Store struct {
	dataset atomic.Pointer[Dataset]
	mu      sync.Mutex // serializes refresh operations
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *Dataset {
	return s.dataset.Load()
}

// Set atomically replaces the current dataset.
func (s *Store) Set(ds *Dataset) {
	s.dataset.Store(ds)
}

// AgeSeconds returns the age of the current dataset in seconds.
// Returns -1 if no dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Lookup finds planets by name, ignoring case, dashes and spaces. A name
// that matches host plus letter ("WASP-12b") selects that planet; a host
// name ("WASP-12") selects every planet of the host.
func (s *Store) Lookup(name string) ([]Planet, error) {
	ds := s.dataset.Load()
	if ds == nil {
		return nil, ErrNoData
	}
	return lookup(ds.Planets, name)
}

// Random returns every planet of a host picked uniformly among the hosts
// with at least one complete planet. A nil r uses the global source.
func (s *Store) Random(r *rand.Rand) ([]Planet, error) {
	ds := s.dataset.Load()
	if ds == nil {
		return nil, ErrNoData
	}
	hosts := completeHosts(ds.Planets)
	if len(hosts) == 0 {
		return nil, ErrIncomplete
	}
	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}
	return lookup(ds.Planets, hosts[intN(len(hosts))])
}

// completeHosts lists, in table order, the hosts that have a complete planet.
func completeHosts(planets []Planet) []string {
	seen := map[string]bool{}
	var hosts []string
	for _, p := range planets {
		if p.Incomplete || seen[p.Host] {
			continue
		}
		seen[p.Host] = true
		hosts = append(hosts, p.Host)
	}
	return hosts
}

func lookup(planets []Planet, name string) ([]Planet, error) {
	key := stripName(name)
	if key == "" {
		return nil, fmt.Errorf("%w: empty name", ErrNotFound)
	}

	if r := []rune(key); len(r) > 1 && unicode.IsLetter(r[len(r)-1]) {
		for _, p := range planets {
			if stripName(p.Host)+stripName(p.Letter) == key {
				return []Planet{p}, nil
			}
		}
	}

	var out []Planet
	for _, p := range planets {
		if stripName(p.Host) == key {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, &NotFoundError{Name: name, Suggestions: suggest(planets, key)}
	}
	return out, nil
}

// NotFoundError reports an unknown name with up to maxSuggestions close
// matches.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%v: %q", ErrNotFound, e.Name)
	if len(e.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(e.Suggestions, ", ") + "?)"
	}
	return msg
}

// Is reports ErrNotFound as a match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

const maxSuggestions = 5

// suggest returns host or planet names within a small edit distance of key,
// closest first.
func suggest(planets []Planet, key string) []string {
	limit := max(2, len(key)/4)
	best := map[string]int{}
	for _, p := range planets {
		host := stripName(p.Host)
		if d := lev.ComputeDistance(key, host); d <= limit {
			if old, ok := best[p.Host]; !ok || d < old {
				best[p.Host] = d
			}
		}
		if d := lev.ComputeDistance(key, host+stripName(p.Letter)); d <= limit {
			if old, ok := best[p.Name()]; !ok || d < old {
				best[p.Name()] = d
			}
		}
	}

	names := make([]string, 0, len(best))
	for n := range best {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if best[names[i]] != best[names[j]] {
			return best[names[i]] < best[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > maxSuggestions {
		names = names[:maxSuggestions]
	}
	return names
}
