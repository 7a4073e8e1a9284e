// Package aspatrie implements the ASPA trust store: a customer-AS →
// provider-AS-set lookup backed by a decimal-digit trie (spec §4.2,
// grounded on the reference aspa_trie.c: one child per digit 0-9, branching
// factor 10, leaves carry the ASPA object).
package aspatrie

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/srx-go/rpki-validator/internal/afi"
	"github.com/srx-go/rpki-validator/internal/result"
)

const digits = 10

// Object is a single customer-AS's provider authorization.
type Object struct {
	CustomerAS uint32
	Family     afi.Family
	// Providers is deduplicated and sorted ascending on construction
	// (spec §3 invariant: "O(log n) membership").
	Providers []uint32
}

// NewObject builds an Object, deduplicating and sorting the provider set.
func NewObject(customerAS uint32, providers []uint32, family afi.Family) *Object {
	seen := make(map[uint32]struct{}, len(providers))
	dedup := make([]uint32, 0, len(providers))
	for _, p := range providers {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		dedup = append(dedup, p)
	}
	sort.Slice(dedup, func(i, j int) bool { return dedup[i] < dedup[j] })
	return &Object{CustomerAS: customerAS, Family: family, Providers: dedup}
}

// HasProvider reports whether provider is authorized, via binary search
// over the sorted provider set.
func (o *Object) HasProvider(provider uint32) bool {
	i := sort.Search(len(o.Providers), func(i int) bool { return o.Providers[i] >= provider })
	return i < len(o.Providers) && o.Providers[i] == provider
}

type node struct {
	children [digits]*node
	obj      *Object
}

// Store is the ASPA trust store: a digit-trie keyed by the decimal string
// of the customer AS, guarded by one read-write lock for the whole trie
// (spec §5). Reads take the read lock; Insert and Flush restructure the
// trie and take the write lock.
type Store struct {
	mu   sync.RWMutex
	root *node
}

// New creates an empty trust store.
func New() *Store {
	return &Store{root: &node{}}
}

func customerKey(customerAS uint32) string {
	return strconv.FormatUint(uint64(customerAS), 10)
}

// Insert replaces any existing object for obj.CustomerAS, atomically
// releasing the previous leaf value (spec §4.2). Takes the write lock.
func (s *Store) Insert(obj *Object) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.root
	for _, r := range customerKey(obj.CustomerAS) {
		idx := int(r - '0')
		if n.children[idx] == nil {
			n.children[idx] = &node{}
		}
		n = n.children[idx]
	}
	n.obj = obj
}

// Lookup returns the ASPA object for customerAS, or nil if none exists.
// Takes the read lock.
func (s *Store) Lookup(customerAS uint32) *Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(customerAS)
}

func (s *Store) lookupLocked(customerAS uint32) *Object {
	n := s.root
	for _, r := range customerKey(customerAS) {
		idx := int(r - '0')
		if n.children[idx] == nil {
			return nil
		}
		n = n.children[idx]
	}
	return n.obj
}

// ValidateHop evaluates one (customer, provider) hop (spec §4.2).
func (s *Store) ValidateHop(customerAS, providerAS uint32, family afi.Family) result.Outcome {
	obj := s.Lookup(customerAS)
	if obj == nil {
		return result.Unknown
	}
	if obj.Family == family && obj.HasProvider(providerAS) {
		return result.Valid
	}
	return result.Invalid
}

// Flush releases every node and object under the write lock.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = &node{}
}

// Count returns the number of ASPA objects currently stored.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countLeaves(s.root)
}

func countLeaves(n *node) int {
	if n == nil {
		return 0
	}
	total := 0
	if n.obj != nil {
		total++
	}
	for _, c := range n.children {
		total += countLeaves(c)
	}
	return total
}

// Walk invokes fn for every stored ASPA object, in lexicographic order of
// the customer AS's decimal string (a side effect of trie iteration order,
// so 100 comes before 20). Used by the
// debug dump endpoint (spec §9: "cheap prefix iteration for range debug
// dumps"). fn must not call back into the store — Walk holds the read lock
// for its entire traversal.
func (s *Store) Walk(fn func(*Object)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	walk(s.root, fn)
}

func walk(n *node, fn func(*Object)) {
	if n == nil {
		return
	}
	if n.obj != nil {
		fn(n.obj)
	}
	for _, c := range n.children {
		walk(c, fn)
	}
}

// Dump renders every ASPA object as one line of text, for the debug HTTP
// endpoint. Format: "<customer-AS> <family> <provider-AS>[,<provider-AS>...]".
func (s *Store) Dump() []byte {
	var lines []string
	s.Walk(func(o *Object) {
		providers := make([]string, len(o.Providers))
		for i, p := range o.Providers {
			providers[i] = strconv.FormatUint(uint64(p), 10)
		}
		lines = append(lines, fmt.Sprintf("%d %s %s", o.CustomerAS, o.Family, strings.Join(providers, ",")))
	})
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}
