package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: total DESC, then id ASC (deterministic).
// The BST comparator treats "less" as ranks earlier, so an in-order
// traversal produces the leaderboard from first to last.

// totalScale controls fixed-point scaling from float64.
const totalScale = 1_000_000

type totalFP int64

func toFixedPoint(x float64) totalFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := x * totalScale
	if scaled >= math.MaxInt64 {
		return totalFP(math.MaxInt64)
	}
	if scaled <= math.MinInt64 {
		return totalFP(math.MinInt64)
	}
	return totalFP(math.Round(scaled))
}

// treap node
type node struct {
	id    string
	total totalFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aTotal, aID) should appear before (bTotal, bID).
func less(aTotal totalFP, aID string, bTotal totalFP, bID string) bool {
	if aTotal != bTotal {
		return aTotal > bTotal
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, total totalFP, prio uint64) *node {
	if n == nil {
		return &node{id: id, total: total, prio: prio, size: 1}
	}
	if less(total, id, n.total, n.id) {
		n.left = insert(n.left, id, total, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, total, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, total totalFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case total == n.total && id == n.id:
		// Rotate the higher priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, total)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, total)
		}
	case less(total, id, n.total, n.id):
		n.left = deleteNode(n.left, id, total)
	default:
		n.right = deleteNode(n.right, id, total)
	}
	fix(n)
	return n
}

// rankOf returns the 0-based in-order position of (id, total).
func rankOf(n *node, id string, total totalFP) int {
	pos := 0
	for n != nil {
		switch {
		case n.id == id && n.total == total:
			return pos + nsize(n.left)
		case less(total, id, n.total, n.id):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collect appends participants in rank order.
func collect(n *node, byID map[string]model.Participant, out *[]model.Participant) {
	if n == nil {
		return
	}
	collect(n.left, byID, out)
	if p, ok := byID[n.id]; ok {
		*out = append(*out, p)
	}
	collect(n.right, byID, out)
}

// TreapStore keeps the ranked dataset in memory. It is the default backend
// and the one used by tests.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]model.Participant
	rng  *rand.Rand
}

// NewTreapStore constructs an empty treap store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID: make(map[string]model.Participant),
		rng:  rand.New(rand.NewPCG(defaultSeed, defaultSeed)), //nolint:gosec // priorities only balance the tree
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements Store.Record with O(log n) expected time.
func (s *TreapStore) Record(_ context.Context, p model.Participant) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(backendMemory, "record", float64(time.Since(start).Milliseconds()))
	}()

	if err := validate(p); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nt := toFixedPoint(p.Total)
	old, exists := s.byID[p.ID]
	if exists {
		ot := toFixedPoint(old.Total)
		if nt <= ot {
			p.Total = old.Total
			s.byID[p.ID] = p
			return false, nil
		}
		s.root = deleteNode(s.root, p.ID, ot)
	}
	s.byID[p.ID] = p
	s.root = insert(s.root, p.ID, nt, s.rng.Uint64())
	return true, nil
}

// Get returns one participant.
func (s *TreapStore) Get(_ context.Context, id string) (model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Participant{}, ErrNotFound
	}
	return p, nil
}

// Snapshot returns all participants in rank order.
func (s *TreapStore) Snapshot(_ context.Context) ([]model.Participant, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(backendMemory, "snapshot", float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Participant, 0, len(s.byID))
	collect(s.root, s.byID, &out)
	return out, nil
}

// Rank returns the 1-based rank of id in O(log n).
func (s *TreapStore) Rank(_ context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	return rankOf(s.root, id, toFixedPoint(p.Total)) + 1, nil
}

// Count returns the number of participants.
func (s *TreapStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Close is a no-op; the store holds no external resources.
func (s *TreapStore) Close() error { return nil }
