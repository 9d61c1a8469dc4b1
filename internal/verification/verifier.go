// Package verification cross-checks detections.
// It re-derives the triplets of a pool and compares them against stored
// attacks, or compares two candidate engines over the same swaps.
package verification

import (
	"math/big"
	"sort"

	"sandwich-scan/internal/domain"
)

// FieldDivergence represents a mismatch between expected and actual values.
type FieldDivergence struct {
	Field    string // field name
	Expected any    // reference value
	Actual   any    // value under test
}

// VerificationResult describes one triplet that did not match.
type VerificationResult struct {
	Key          domain.TripletKey
	ExpectedOnly bool // found by the reference only
	ActualOnly   bool // found by the side under test only
	Divergences  []FieldDivergence
}

// VerificationReport contains results for one pool.
type VerificationReport struct {
	PoolID    int64
	FromBlock int64
	ToBlock   int64

	Expected     int // triplets on the reference side
	Actual       int // triplets on the side under test
	Matched      int // present on both sides with equal fields
	Divergent    int // present on both sides with different fields
	ExpectedOnly int
	ActualOnly   int

	Results []VerificationResult // mismatches only, ordered by key
}

// Match reports whether both sides agree on every triplet.
func (r *VerificationReport) Match() bool {
	return r.Divergent == 0 && r.ExpectedOnly == 0 && r.ActualOnly == 0
}

// Triplet is the comparable projection of a candidate or a stored attack.
type Triplet struct {
	Key               domain.TripletKey
	BaseTokenID       int64
	AttackerAddress   string
	VictimAddress     string
	BlockNumber       int64 // victim block
	VictimBaseSizeRaw *big.Int
	RevenueBaseRaw    *big.Int
}

// FromCandidate projects a matcher candidate.
func FromCandidate(c *domain.Candidate) Triplet {
	return Triplet{
		Key:               c.Key(),
		BaseTokenID:       c.BaseTokenID,
		AttackerAddress:   c.AttackerAddress,
		VictimAddress:     c.VictimAddress,
		BlockNumber:       c.Victim.Position.BlockNumber,
		VictimBaseSizeRaw: c.VictimBaseSizeRaw,
		RevenueBaseRaw:    c.RevenueBaseRaw,
	}
}

// FromAttack projects a stored attack.
func FromAttack(a *domain.SandwichAttack) Triplet {
	return Triplet{
		Key:               a.Key(),
		BaseTokenID:       a.BaseTokenID,
		AttackerAddress:   a.AttackerAddress,
		VictimAddress:     a.VictimAddress,
		BlockNumber:       a.BlockNumber,
		VictimBaseSizeRaw: a.VictimBaseSizeRaw,
		RevenueBaseRaw:    a.RevenueBaseRaw,
	}
}

// CompareTriplets compares the identity and raw economic fields of two
// projections of the same key.
func CompareTriplets(expected, actual Triplet) []FieldDivergence {
	var divergences []FieldDivergence

	if expected.BaseTokenID != actual.BaseTokenID {
		divergences = append(divergences, FieldDivergence{
			Field:    "BaseTokenID",
			Expected: expected.BaseTokenID,
			Actual:   actual.BaseTokenID,
		})
	}
	if expected.AttackerAddress != actual.AttackerAddress {
		divergences = append(divergences, FieldDivergence{
			Field:    "AttackerAddress",
			Expected: expected.AttackerAddress,
			Actual:   actual.AttackerAddress,
		})
	}
	if expected.VictimAddress != actual.VictimAddress {
		divergences = append(divergences, FieldDivergence{
			Field:    "VictimAddress",
			Expected: expected.VictimAddress,
			Actual:   actual.VictimAddress,
		})
	}
	if expected.BlockNumber != actual.BlockNumber {
		divergences = append(divergences, FieldDivergence{
			Field:    "BlockNumber",
			Expected: expected.BlockNumber,
			Actual:   actual.BlockNumber,
		})
	}

	// Raw amounts are exact integers
	if !bigEquals(expected.VictimBaseSizeRaw, actual.VictimBaseSizeRaw) {
		divergences = append(divergences, FieldDivergence{
			Field:    "VictimBaseSizeRaw",
			Expected: bigString(expected.VictimBaseSizeRaw),
			Actual:   bigString(actual.VictimBaseSizeRaw),
		})
	}
	if !bigEquals(expected.RevenueBaseRaw, actual.RevenueBaseRaw) {
		divergences = append(divergences, FieldDivergence{
			Field:    "RevenueBaseRaw",
			Expected: bigString(expected.RevenueBaseRaw),
			Actual:   bigString(actual.RevenueBaseRaw),
		})
	}

	return divergences
}

// Diff compares two sets of triplets keyed by (front, victim, back).
func Diff(expected, actual []Triplet) *VerificationReport {
	r := &VerificationReport{Expected: len(expected), Actual: len(actual)}

	byKey := make(map[domain.TripletKey]Triplet, len(actual))
	for _, t := range actual {
		byKey[t.Key] = t
	}

	for _, e := range expected {
		a, ok := byKey[e.Key]
		if !ok {
			r.ExpectedOnly++
			r.Results = append(r.Results, VerificationResult{Key: e.Key, ExpectedOnly: true})
			continue
		}
		delete(byKey, e.Key)

		if d := CompareTriplets(e, a); len(d) > 0 {
			r.Divergent++
			r.Results = append(r.Results, VerificationResult{Key: e.Key, Divergences: d})
			continue
		}
		r.Matched++
	}

	for key := range byKey {
		r.ActualOnly++
		r.Results = append(r.Results, VerificationResult{Key: key, ActualOnly: true})
	}

	sort.Slice(r.Results, func(i, j int) bool {
		return keyLess(r.Results[i].Key, r.Results[j].Key)
	})
	return r
}

func keyLess(a, b domain.TripletKey) bool {
	if a.FrontSwapID != b.FrontSwapID {
		return a.FrontSwapID < b.FrontSwapID
	}
	if a.VictimSwapID != b.VictimSwapID {
		return a.VictimSwapID < b.VictimSwapID
	}
	return a.BackSwapID < b.BackSwapID
}

// bigEquals treats nil as zero.
func bigEquals(a, b *big.Int) bool {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b) == 0
}

func bigString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}
