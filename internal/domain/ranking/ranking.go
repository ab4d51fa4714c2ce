// Package ranking orders participants by contribution total and resolves the
// neighbors a participant must catch or hold off.
package ranking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/internal/domain/types"
	"github.com/okian/rivalry/pkg/metrics"
)

// Default edge policy values.
const (
	DefaultAspirationalIncrement = 50.0
	DefaultFloorDecrement        = 20.0

	gapPlaces = 2
)

// ErrSnapshot marks a failure to read the ranked dataset.
var ErrSnapshot = errors.New("ranked snapshot failed")

// RankedSet is an immutable view of participants sorted by total descending,
// ties broken by id ascending. Rank is the 1-based position.
type RankedSet struct {
	items []model.Participant
	index map[string]int
}

// NewRankedSet sorts a copy of ps. The input slice is not modified.
func NewRankedSet(ps []model.Participant) *RankedSet {
	items := slices.Clone(ps)
	slices.SortFunc(items, compare)

	index := make(map[string]int, len(items))
	for i, p := range items {
		index[p.ID] = i
	}
	return &RankedSet{items: items, index: index}
}

func compare(a, b model.Participant) int {
	if c := cmp.Compare(b.Total, a.Total); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// byTotal orders a descending slice against a target total.
func byTotal(p model.Participant, t float64) int {
	return cmp.Compare(t, p.Total)
}

// Len returns the number of participants.
func (s *RankedSet) Len() int { return len(s.items) }

// At returns the participant at 0-based position i.
func (s *RankedSet) At(i int) model.Participant { return s.items[i] }

// Rank returns the 1-based rank of id.
func (s *RankedSet) Rank(id string) (int, bool) {
	i, ok := s.index[id]
	if !ok {
		return 0, false
	}
	return i + 1, true
}

// TopN returns up to n leading entries.
func (s *RankedSet) TopN(n int) []types.Entry {
	n = min(max(n, 0), len(s.items))
	out := make([]types.Entry, n)
	for i := range n {
		out[i] = types.Entry{Rank: i + 1, ParticipantID: s.items[i].ID, Total: s.items[i].Total}
	}
	return out
}

// Above returns the participant with the smallest total strictly greater
// than total. Among equal totals the one ranked lowest wins, so the result
// is the participant immediately above in rank.
func (s *RankedSet) Above(total float64) (model.Participant, bool) {
	// i is the first position whose total is <= total.
	i, _ := slices.BinarySearchFunc(s.items, total, byTotal)
	if i == 0 {
		return model.Participant{}, false
	}
	return s.items[i-1], true
}

// Below returns the participant with the largest total strictly lower than
// total, the one immediately below in rank.
func (s *RankedSet) Below(total float64) (model.Participant, bool) {
	i, found := slices.BinarySearchFunc(s.items, total, byTotal)
	if found {
		for i < len(s.items) && s.items[i].Total >= total {
			i++
		}
	}
	if i >= len(s.items) {
		return model.Participant{}, false
	}
	return s.items[i], true
}

// SnapshotSource supplies the current participant set.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]model.Participant, error)
}

// Resolver computes gaps from a fresh snapshot on every call.
type Resolver struct {
	source                SnapshotSource
	aspirationalIncrement float64
	floorDecrement        float64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAspirationalIncrement sets the synthetic gap used at the top rank.
func WithAspirationalIncrement(v float64) Option {
	return func(r *Resolver) {
		if v > 0 {
			r.aspirationalIncrement = v
		}
	}
}

// WithFloorDecrement sets how far below the subject the synthetic chaser sits.
func WithFloorDecrement(v float64) Option {
	return func(r *Resolver) {
		if v >= 0 {
			r.floorDecrement = v
		}
	}
}

// NewResolver creates a Resolver reading from source.
func NewResolver(source SnapshotSource, opts ...Option) *Resolver {
	r := &Resolver{
		source:                source,
		aspirationalIncrement: DefaultAspirationalIncrement,
		floorDecrement:        DefaultFloorDecrement,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AspirationalIncrement returns the top rank synthetic gap.
func (r *Resolver) AspirationalIncrement() float64 { return r.aspirationalIncrement }

// FloorTotal returns the synthetic chaser total for a bottom ranked subject.
func (r *Resolver) FloorTotal(selfTotal float64) float64 {
	return max(0, round(selfTotal-r.floorDecrement))
}

// Snapshot reads and ranks the current dataset.
func (r *Resolver) Snapshot(ctx context.Context) (*RankedSet, error) {
	ps, err := r.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	metrics.UpdateParticipantsTotal(len(ps))
	return NewRankedSet(ps), nil
}

// Resolve finds the neighbors of selfID holding selfTotal.
func (r *Resolver) Resolve(ctx context.Context, selfID string, selfTotal float64) (model.GapResult, error) {
	set, err := r.Snapshot(ctx)
	if err != nil {
		return model.GapResult{}, err
	}
	return r.ResolveIn(set, selfID, selfTotal), nil
}

// ResolveIn applies the edge policy against an existing snapshot.
func (r *Resolver) ResolveIn(set *RankedSet, selfID string, selfTotal float64) model.GapResult {
	res := model.GapResult{Size: set.Len()}
	res.Rank, _ = set.Rank(selfID)

	if c, ok := set.Above(selfTotal); ok {
		res.CompetitorID = c.ID
		res.GapUp = gap(c.Total, selfTotal)
	} else {
		res.IsTopRanked = true
		res.GapUp = round(r.aspirationalIncrement)
	}

	if c, ok := set.Below(selfTotal); ok {
		res.ChaserID = c.ID
		res.GapDown = gap(selfTotal, c.Total)
	} else {
		res.IsBottomRanked = true
		res.GapDown = gap(selfTotal, r.FloorTotal(selfTotal))
	}
	return res
}

func gap(hi, lo float64) float64 {
	return decimal.NewFromFloat(hi).Sub(decimal.NewFromFloat(lo)).Round(gapPlaces).InexactFloat64()
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(gapPlaces).InexactFloat64()
}
