package verification

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"sandwich-scan/internal/detection"
	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/sandwich"
	"sandwich-scan/internal/storage"
)

// ErrNoSubject is returned by VerifyEngines when no second finder is configured.
var ErrNoSubject = errors.New("no subject finder configured")

// Options configures a Verifier. Window and matcher parameters must equal the
// detector's for stored attacks to be reproducible.
type Options struct {
	Reference storage.CandidateFinder // re-derives triplets
	Subject   storage.CandidateFinder // engine under test, optional
	Attacks   storage.SandwichAttackStore
	Tokens    storage.TokenStore
	Wrapped   storage.WrappedNativeTokenStore

	WindowSize       int64
	Overlap          int64
	MaxBlockGap      int64
	MinVictimBaseRaw *big.Int

	Logger *zap.Logger
}

// Verifier replays detection over a block range without writing anything.
type Verifier struct {
	reference storage.CandidateFinder
	subject   storage.CandidateFinder
	attacks   storage.SandwichAttackStore
	tokens    storage.TokenStore
	wrapped   storage.WrappedNativeTokenStore

	windowSize  int64
	overlap     int64
	maxBlockGap int64
	minVictim   *big.Int
	log         *zap.Logger
}

// NewVerifier creates a Verifier with the detector's defaults.
func NewVerifier(opts Options) *Verifier {
	if opts.WindowSize <= 0 {
		opts.WindowSize = detection.DefaultWindowSize
	}
	if opts.MaxBlockGap <= 0 {
		opts.MaxBlockGap = detection.DefaultMaxBlockGap
	}
	if opts.Overlap < opts.MaxBlockGap {
		opts.Overlap = opts.MaxBlockGap
	}
	if opts.MinVictimBaseRaw == nil {
		opts.MinVictimBaseRaw = new(big.Int)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Verifier{
		reference:   opts.Reference,
		subject:     opts.Subject,
		attacks:     opts.Attacks,
		tokens:      opts.Tokens,
		wrapped:     opts.Wrapped,
		windowSize:  opts.WindowSize,
		overlap:     opts.Overlap,
		maxBlockGap: opts.MaxBlockGap,
		minVictim:   opts.MinVictimBaseRaw,
		log:         opts.Logger.Named("verifier"),
	}
}

// VerifyEngines runs the reference and subject finders over front-runs in
// [from, to] and compares their triplets.
func (v *Verifier) VerifyEngines(ctx context.Context, pool *domain.Pool, from, to int64) (*VerificationReport, error) {
	if v.subject == nil {
		return nil, ErrNoSubject
	}

	params, err := v.params(ctx, pool)
	if err != nil {
		return nil, err
	}

	expected, err := v.collect(ctx, v.reference, params, from, to)
	if err != nil {
		return nil, fmt.Errorf("reference engine: %w", err)
	}
	actual, err := v.collect(ctx, v.subject, params, from, to)
	if err != nil {
		return nil, fmt.Errorf("subject engine: %w", err)
	}

	report := Diff(project(expected), project(actual))
	report.PoolID, report.FromBlock, report.ToBlock = pool.ID, from, to
	v.logReport("engines compared", report)
	return report, nil
}

// VerifyStored re-derives the triplets whose victim lies in [from, to] and
// compares them against the stored attacks of the same victim range.
func (v *Verifier) VerifyStored(ctx context.Context, pool *domain.Pool, from, to int64) (*VerificationReport, error) {
	params, err := v.params(ctx, pool)
	if err != nil {
		return nil, err
	}

	// A victim at from may follow a front-run up to the gap earlier
	frontFrom := from - v.maxBlockGap
	if frontFrom < pool.CreatedBlockNumber {
		frontFrom = pool.CreatedBlockNumber
	}
	derived, err := v.collect(ctx, v.reference, params, frontFrom, to)
	if err != nil {
		return nil, fmt.Errorf("re-derive: %w", err)
	}

	var expected []Triplet
	for _, c := range derived {
		if b := c.Victim.Position.BlockNumber; b >= from && b <= to {
			expected = append(expected, FromCandidate(c))
		}
	}

	stored, err := v.attacks.ListByPool(ctx, pool.ID)
	if err != nil {
		return nil, fmt.Errorf("list stored attacks: %w", err)
	}
	var actual []Triplet
	for _, a := range stored {
		if a.BlockNumber >= from && a.BlockNumber <= to {
			actual = append(actual, FromAttack(a))
		}
	}

	report := Diff(expected, actual)
	report.PoolID, report.FromBlock, report.ToBlock = pool.ID, from, to
	v.logReport("stored attacks verified", report)
	return report, nil
}

func (v *Verifier) params(ctx context.Context, pool *domain.Pool) (sandwich.Params, error) {
	base, err := detection.ResolveBase(ctx, v.tokens, v.wrapped, pool)
	if err != nil {
		return sandwich.Params{}, err
	}
	return sandwich.Params{
		PoolID:           pool.ID,
		Token0ID:         pool.Token0ID,
		Token1ID:         pool.Token1ID,
		BaseTokenID:      base,
		MaxBlockGap:      v.maxBlockGap,
		MinVictimBaseRaw: v.minVictim,
	}, nil
}

// collect runs finder window by window and deduplicates by triplet key.
func (v *Verifier) collect(ctx context.Context, finder storage.CandidateFinder, p sandwich.Params, from, to int64) ([]*domain.Candidate, error) {
	seen := make(map[domain.TripletKey]bool)
	var out []*domain.Candidate

	for _, w := range detection.Windows(from, to, v.windowSize, v.overlap) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.FrontFrom, p.FrontTo = w.From, w.To
		cands, err := finder.FindCandidates(ctx, p, w.ReadTo)
		if err != nil {
			return nil, fmt.Errorf("window %d-%d: %w", w.From, w.To, err)
		}
		for _, c := range cands {
			if k := c.Key(); !seen[k] {
				seen[k] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (v *Verifier) logReport(msg string, r *VerificationReport) {
	fields := []zap.Field{
		zap.Int64("pool_id", r.PoolID),
		zap.Int64("from", r.FromBlock),
		zap.Int64("to", r.ToBlock),
		zap.Int("expected", r.Expected),
		zap.Int("actual", r.Actual),
		zap.Int("matched", r.Matched),
		zap.Int("divergent", r.Divergent),
		zap.Int("expected_only", r.ExpectedOnly),
		zap.Int("actual_only", r.ActualOnly),
	}
	if r.Match() {
		v.log.Info(msg, fields...)
		return
	}
	v.log.Warn(msg, fields...)
}

func project(cands []*domain.Candidate) []Triplet {
	out := make([]Triplet, len(cands))
	for i, c := range cands {
		out[i] = FromCandidate(c)
	}
	return out
}
