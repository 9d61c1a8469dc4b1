package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// SandwichAttackStore implements storage.SandwichAttackStore using PostgreSQL.
type SandwichAttackStore struct {
	pool *Pool
}

// NewSandwichAttackStore creates a new SandwichAttackStore.
func NewSandwichAttackStore(pool *Pool) *SandwichAttackStore {
	return &SandwichAttackStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SandwichAttackStore = (*SandwichAttackStore)(nil)

const insertAttackQuery = `
	INSERT INTO sandwich_attacks (
		chain_id, pool_id, front_swap_id, victim_swap_id, back_swap_id,
		attacker_address, victim_address, base_token_id, block_number, block_timestamp,
		victim_base_size_raw, revenue_base_raw, profit_base_raw, detected_by, notes
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11::numeric, $12::numeric, $12::numeric, $13, $14
	)
	ON CONFLICT (front_swap_id, victim_swap_id, back_swap_id) DO NOTHING
`

// InsertIgnore inserts attacks in chunks, one transaction per chunk, and
// skips triplets that already exist. Until valuation runs, profit equals
// revenue and every priced flag is false.
func (s *SandwichAttackStore) InsertIgnore(ctx context.Context, attacks []*domain.SandwichAttack) (int, error) {
	inserted := 0
	for _, c := range storage.Chunks(len(attacks), storage.DefaultChunkSize) {
		n, err := s.insertChunk(ctx, attacks[c[0]:c[1]])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

func (s *SandwichAttackStore) insertChunk(ctx context.Context, attacks []*domain.SandwichAttack) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, a := range attacks {
		batch.Queue(insertAttackQuery,
			a.ChainID, a.PoolID, a.FrontSwapID, a.VictimSwapID, a.BackSwapID,
			a.AttackerAddress, a.VictimAddress, a.BaseTokenID, a.BlockNumber, a.BlockTimestamp,
			numArgZero(a.VictimBaseSizeRaw), numArgZero(a.RevenueBaseRaw), a.DetectedBy, a.Notes,
		)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range attacks {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert sandwich attack: %w", constraintError(err))
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

const attackColumns = `
	id, chain_id, pool_id, front_swap_id, victim_swap_id, back_swap_id,
	attacker_address, victim_address, base_token_id, block_number, block_timestamp,
	victim_base_size_raw::text, revenue_base_raw::text, gas_fee_wei_attacker::text, gas_fee_base_raw::text,
	profit_base_raw::text, harm_base_raw::text,
	gas_fee_usd::text, revenue_usd::text, profit_usd::text, harm_usd::text,
	gas_priced, harm_priced, usd_priced, valued_at, detected_by, notes, created_at
`

// GetByKey retrieves an attack by triplet key.
func (s *SandwichAttackStore) GetByKey(ctx context.Context, key domain.TripletKey) (*domain.SandwichAttack, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attackColumns+`
		FROM sandwich_attacks
		WHERE front_swap_id = $1 AND victim_swap_id = $2 AND back_swap_id = $3
	`, key.FrontSwapID, key.VictimSwapID, key.BackSwapID)
	if err != nil {
		return nil, fmt.Errorf("get sandwich attack: %w", err)
	}
	defer rows.Close()

	attacks, err := scanAttacks(rows)
	if err != nil {
		return nil, err
	}
	if len(attacks) == 0 {
		return nil, storage.ErrNotFound
	}
	return attacks[0], nil
}

// ListByPool returns the attacks of a pool ordered by id ASC.
func (s *SandwichAttackStore) ListByPool(ctx context.Context, poolID int64) ([]*domain.SandwichAttack, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attackColumns+` FROM sandwich_attacks WHERE pool_id = $1 ORDER BY id ASC`, poolID)
	if err != nil {
		return nil, fmt.Errorf("list sandwich attacks: %w", err)
	}
	defer rows.Close()

	return scanAttacks(rows)
}

const listForValuationQuery = `
	SELECT
		a.id, a.chain_id, a.base_token_id,
		p.id, p.chain_id, p.address, p.version, p.token0_id, p.token1_id, p.fee_pips,
		p.created_block_number, p.is_active,
		tb.decimals, tother.decimals,
		%s
	FROM sandwich_attacks a
	JOIN pools p ON p.id = a.pool_id
	JOIN tokens tb ON tb.id = a.base_token_id
	JOIN tokens tother ON tother.id = CASE WHEN p.token0_id = a.base_token_id THEN p.token1_id ELSE p.token0_id END
	JOIN swaps fs ON fs.id = a.front_swap_id
	JOIN transactions ft ON ft.id = fs.transaction_id
	JOIN swaps vs ON vs.id = a.victim_swap_id
	JOIN transactions vt ON vt.id = vs.transaction_id
	JOIN swaps bs ON bs.id = a.back_swap_id
	JOIN transactions bt ON bt.id = bs.transaction_id
	WHERE a.id > $1 AND ($3 OR a.valued_at IS NULL)
	ORDER BY a.id ASC
	LIMIT $2
`

// ListForValuation returns one page of flat valuation inputs.
func (s *SandwichAttackStore) ListForValuation(ctx context.Context, afterID int64, limit int, includeValued bool) ([]*domain.ValuationInput, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	legs := legColumns("fs", "ft") + ", " + legColumns("vs", "vt") + ", " + legColumns("bs", "bt")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(listForValuationQuery, legs), afterID, limit, includeValued)
	if err != nil {
		return nil, fmt.Errorf("list attacks for valuation: %w", err)
	}
	defer rows.Close()

	var out []*domain.ValuationInput
	for rows.Next() {
		var (
			in                  domain.ValuationInput
			version             string
			front, victim, back legScan
		)
		dest := []any{
			&in.AttackID, &in.ChainID, &in.BaseTokenID,
			&in.Pool.ID, &in.Pool.ChainID, &in.Pool.Address, &version, &in.Pool.Token0ID, &in.Pool.Token1ID,
			&in.Pool.FeePips, &in.Pool.CreatedBlockNumber, &in.Pool.IsActive,
			&in.BaseDecimals, &in.OtherDecimals,
		}
		dest = append(dest, front.dest()...)
		dest = append(dest, victim.dest()...)
		dest = append(dest, back.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan valuation row: %w", err)
		}
		in.Pool.Version = domain.PoolVersion(version)

		for _, pair := range []struct {
			src *legScan
			dst *domain.SwapLeg
		}{{&front, &in.Front}, {&victim, &in.Victim}, {&back, &in.Back}} {
			leg, err := pair.src.result()
			if err != nil {
				return nil, fmt.Errorf("attack %d: %w", in.AttackID, err)
			}
			*pair.dst = *leg
		}
		out = append(out, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate valuation rows: %w", err)
	}

	return out, nil
}

// UpdateValuation writes the economic fields of one attack and stamps valued_at.
// Unknown values are written as 0 with their flag false.
func (s *SandwichAttackStore) UpdateValuation(ctx context.Context, id int64, v *domain.Valuation) error {
	if v == nil {
		return storage.ErrInvalidInput
	}

	valuedAt := time.Now().UTC()
	if v.ValuedAt != nil {
		valuedAt = *v.ValuedAt
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sandwich_attacks
		SET revenue_base_raw = $2::numeric,
		    gas_fee_wei_attacker = $3::numeric,
		    gas_fee_base_raw = $4::numeric,
		    profit_base_raw = $5::numeric,
		    harm_base_raw = $6::numeric,
		    gas_fee_usd = $7::numeric,
		    revenue_usd = $8::numeric,
		    profit_usd = $9::numeric,
		    harm_usd = $10::numeric,
		    gas_priced = $11,
		    harm_priced = $12,
		    usd_priced = $13,
		    valued_at = $14
		WHERE id = $1
	`,
		id,
		numArgZero(v.RevenueBaseRaw), numArgZero(v.GasFeeWeiAttacker), numArgZero(v.GasFeeBaseRaw),
		numArgZero(v.ProfitBaseRaw), numArgZero(v.HarmBaseRaw),
		decArg(v.GasFeeUSD), decArg(v.RevenueUSD), decArg(v.ProfitUSD), decArg(v.HarmUSD),
		v.GasPriced, v.HarmPriced, v.USDPriced, valuedAt,
	)
	if err != nil {
		return fmt.Errorf("update valuation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MonthlySummary aggregates attacks by UTC month of the victim block time.
// USD totals only include rows whose USD fields are priced.
func (s *SandwichAttackStore) MonthlySummary(ctx context.Context, chainID int64, from, to time.Time) ([]*domain.MonthlySummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			date_trunc('month', to_timestamp(block_timestamp) AT TIME ZONE 'UTC') AS month,
			count(*),
			count(valued_at),
			COALESCE(sum(revenue_usd) FILTER (WHERE usd_priced), 0)::text,
			COALESCE(sum(profit_usd) FILTER (WHERE usd_priced), 0)::text,
			COALESCE(sum(harm_usd) FILTER (WHERE usd_priced AND harm_priced), 0)::text,
			COALESCE(sum(gas_fee_usd) FILTER (WHERE usd_priced AND gas_priced), 0)::text,
			count(DISTINCT pool_id),
			count(DISTINCT attacker_address)
		FROM sandwich_attacks
		WHERE chain_id = $1 AND block_timestamp >= $2 AND block_timestamp < $3
		GROUP BY 1
		ORDER BY 1
	`, chainID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("monthly summary: %w", err)
	}
	defer rows.Close()

	var out []*domain.MonthlySummary
	for rows.Next() {
		var (
			m                          domain.MonthlySummary
			revenue, profit, harm, gas string
		)
		err := rows.Scan(&m.Month, &m.Attacks, &m.Valued, &revenue, &profit, &harm, &gas, &m.UniquePools, &m.UniqueActors)
		if err != nil {
			return nil, fmt.Errorf("scan monthly summary row: %w", err)
		}

		var p numParser
		m.Month = m.Month.UTC()
		m.RevenueUSD = p.dec(revenue)
		m.ProfitUSD = p.dec(profit)
		m.HarmUSD = p.dec(harm)
		m.GasFeeUSD = p.dec(gas)
		if p.err != nil {
			return nil, fmt.Errorf("monthly summary: %w", p.err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly summary rows: %w", err)
	}

	return out, nil
}

// scanAttacks scans attackColumns rows.
func scanAttacks(rows pgx.Rows) ([]*domain.SandwichAttack, error) {
	var attacks []*domain.SandwichAttack

	for rows.Next() {
		var (
			a                                      domain.SandwichAttack
			size, revenue, gasWei, gasBase         string
			profit, harm                           string
			gasUSD, revenueUSD, profitUSD, harmUSD string
		)
		err := rows.Scan(
			&a.ID, &a.ChainID, &a.PoolID, &a.FrontSwapID, &a.VictimSwapID, &a.BackSwapID,
			&a.AttackerAddress, &a.VictimAddress, &a.BaseTokenID, &a.BlockNumber, &a.BlockTimestamp,
			&size, &revenue, &gasWei, &gasBase, &profit, &harm,
			&gasUSD, &revenueUSD, &profitUSD, &harmUSD,
			&a.GasPriced, &a.HarmPriced, &a.USDPriced, &a.ValuedAt, &a.DetectedBy, &a.Notes, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sandwich attack row: %w", err)
		}

		var p numParser
		a.VictimBaseSizeRaw = p.numZero(size)
		a.RevenueBaseRaw = p.numZero(revenue)
		a.GasFeeWeiAttacker = p.numZero(gasWei)
		a.GasFeeBaseRaw = p.numZero(gasBase)
		a.ProfitBaseRaw = p.numZero(profit)
		a.HarmBaseRaw = p.numZero(harm)
		a.GasFeeUSD = p.dec(gasUSD)
		a.RevenueUSD = p.dec(revenueUSD)
		a.ProfitUSD = p.dec(profitUSD)
		a.HarmUSD = p.dec(harmUSD)
		if p.err != nil {
			return nil, fmt.Errorf("sandwich attack %d: %w", a.ID, p.err)
		}
		attacks = append(attacks, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sandwich attack rows: %w", err)
	}

	return attacks, nil
}
