package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/observability"
	"sandwich-scan/internal/sandwich"
	"sandwich-scan/internal/storage"
)

// CandidateFinder implements storage.CandidateFinder as a windowed self-join.
// Pairing and victim selection run in SQL. Revenue, victim size and the size
// threshold are applied in Go with the same functions the in-memory matcher uses.
type CandidateFinder struct {
	pool *Pool
}

// NewCandidateFinder creates a new CandidateFinder.
func NewCandidateFinder(pool *Pool) *CandidateFinder {
	return &CandidateFinder{pool: pool}
}

// Compile-time interface check.
var _ storage.CandidateFinder = (*CandidateFinder)(nil)

// Parameters:
//
//	$1 pool id, $2 first leg block, $3 last leg block, $4 last front block,
//	$5 sell direction (1 = token0->token1, -1 = token1->token0),
//	$6 base token id, $7 other token id, $8 max block gap.
var findCandidatesQuery = `
	WITH legs AS (
		SELECT
			s.id,
			t.block_number AS blk,
			t.tx_index,
			s.log_index,
			lower(t.from_address) AS actor,
			CASE
				WHEN s.amount0_in > 0 AND s.amount1_out > 0 AND s.amount1_in = 0 AND s.amount0_out = 0 THEN 1
				WHEN s.amount1_in > 0 AND s.amount0_out > 0 AND s.amount0_in = 0 AND s.amount1_out = 0 THEN -1
				ELSE 0
			END AS dir,
			s.sell_token_id,
			s.buy_token_id
		FROM swaps s
		JOIN transactions t ON t.id = s.transaction_id
		WHERE s.pool_id = $1
		  AND t.block_number >= $2 AND t.block_number <= $3
		  AND t.from_address <> ''
		  AND (s.sell_token_id IS NULL OR s.buy_token_id IS NULL OR s.sell_token_id <> s.buy_token_id)
	),
	fronts AS (
		SELECT * FROM legs
		WHERE dir = $5 AND blk <= $4
		  AND (sell_token_id IS NULL OR sell_token_id = $6)
		  AND (buy_token_id IS NULL OR buy_token_id = $7)
	),
	pairs AS (
		SELECT
			f.id AS front_id, f.actor, f.blk AS f_blk, f.tx_index AS f_tx, f.log_index AS f_log,
			b.id AS back_id, b.blk AS b_blk, b.tx_index AS b_tx, b.log_index AS b_log
		FROM fronts f
		CROSS JOIN LATERAL (
			SELECT l.id, l.blk, l.tx_index, l.log_index
			FROM legs l
			WHERE l.actor = f.actor
			  AND l.dir = -($5::int)
			  AND (l.blk, l.tx_index, l.log_index) > (f.blk, f.tx_index, f.log_index)
			  AND l.blk - f.blk <= $8
			  AND (l.sell_token_id IS NULL OR l.sell_token_id = $7)
			  AND (l.buy_token_id IS NULL OR l.buy_token_id = $6)
			ORDER BY l.blk, l.tx_index, l.log_index
			LIMIT 1
		) b
	),
	triplets AS (
		SELECT p.front_id, v.id AS victim_id, p.back_id, v.blk, v.tx_index, v.log_index
		FROM pairs p
		JOIN legs v
		  ON (v.blk, v.tx_index, v.log_index) > (p.f_blk, p.f_tx, p.f_log)
		 AND (v.blk, v.tx_index, v.log_index) < (p.b_blk, p.b_tx, p.b_log)
		WHERE v.actor <> p.actor
		  AND v.dir = $5
		  AND (v.sell_token_id IS NULL OR v.sell_token_id = $6)
		  AND (v.buy_token_id IS NULL OR v.buy_token_id = $7)
	)
	SELECT ` + legColumns("fs", "ft") + `,
	       ` + legColumns("vs", "vt") + `,
	       ` + legColumns("bs", "bt") + `
	FROM triplets x
	JOIN swaps fs ON fs.id = x.front_id
	JOIN transactions ft ON ft.id = fs.transaction_id
	JOIN swaps vs ON vs.id = x.victim_id
	JOIN transactions vt ON vt.id = vs.transaction_id
	JOIN swaps bs ON bs.id = x.back_id
	JOIN transactions bt ON bt.id = bs.transaction_id
	ORDER BY ft.block_number, ft.tx_index, fs.log_index, x.blk, x.tx_index, x.log_index
`

// FindCandidates returns the triplets whose front-run lies in
// [p.FrontFrom, p.FrontTo] and whose legs all lie in [p.FrontFrom, toBlock].
func (f *CandidateFinder) FindCandidates(ctx context.Context, p sandwich.Params, toBlock int64) ([]*domain.Candidate, error) {
	start := time.Now()
	cands, err := f.find(ctx, p, toBlock)
	observability.RecordDBQuery("postgres", "find_candidates", time.Since(start).Seconds(), err)
	return cands, err
}

func (f *CandidateFinder) find(ctx context.Context, p sandwich.Params, toBlock int64) ([]*domain.Candidate, error) {
	if p.BaseTokenID != p.Token0ID && p.BaseTokenID != p.Token1ID {
		return nil, sandwich.ErrBaseNotInPool
	}

	baseIsToken0 := p.BaseTokenID == p.Token0ID
	other := p.Token1ID
	if !baseIsToken0 {
		other = p.Token0ID
	}
	frontTo := p.FrontTo
	if frontTo == 0 || frontTo > toBlock {
		frontTo = toBlock
	}
	minVictim := p.MinVictimBaseRaw
	if minVictim == nil {
		minVictim = new(big.Int)
	}

	rows, err := f.pool.Query(ctx, findCandidatesQuery,
		p.PoolID, p.FrontFrom, toBlock, frontTo,
		int(sandwich.SellDirection(baseIsToken0)), p.BaseTokenID, other, p.MaxBlockGap,
	)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var out []*domain.Candidate
	for rows.Next() {
		var front, victim, back legScan
		dest := append(append(front.dest(), victim.dest()...), back.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}

		fl, err := front.result()
		if err != nil {
			return nil, err
		}
		vl, err := victim.result()
		if err != nil {
			return nil, err
		}
		bl, err := back.result()
		if err != nil {
			return nil, err
		}

		size := sandwich.VictimBaseSize(vl, baseIsToken0)
		if size.Cmp(minVictim) <= 0 {
			continue
		}

		out = append(out, &domain.Candidate{
			PoolID:            p.PoolID,
			BaseTokenID:       p.BaseTokenID,
			Front:             fl,
			Victim:            vl,
			Back:              bl,
			AttackerAddress:   fl.Actor,
			VictimAddress:     vl.Actor,
			VictimBaseSizeRaw: size,
			RevenueBaseRaw:    sandwich.Revenue(fl, bl, baseIsToken0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}

	return out, nil
}
