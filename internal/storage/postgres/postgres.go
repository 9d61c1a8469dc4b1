package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"sandwich-scan/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// PoolConfig tunes the connection pool. Zero values keep pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	return NewPoolWithConfig(ctx, dsn, PoolConfig{})
}

// NewPoolWithConfig creates a Postgres connection pool with explicit limits.
func NewPoolWithConfig(ctx context.Context, dsn string, pc PoolConfig) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if pc.MaxConns > 0 {
		config.MaxConns = pc.MaxConns
	}
	if pc.MaxConnLifetime > 0 {
		config.MaxConnLifetime = pc.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation     = "23505" // unique_violation
	pgErrForeignKeyViolation = "23503" // foreign_key_violation
	pgErrCheckViolation      = "23514" // check_violation
)

// constraintError maps integrity violations to storage errors so callers can
// tell bad input from an unavailable database. Other errors pass through.
func constraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, pgErr.ConstraintName)
	case pgErrForeignKeyViolation, pgErrCheckViolation:
		return fmt.Errorf("%w: %s", storage.ErrInvalidInput, pgErr.ConstraintName)
	}
	return err
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Numeric columns travel as decimal text in both directions: arguments are
// cast with $n::numeric and selects use col::text. This keeps uint256 values
// exact without depending on driver numeric codecs.

// numArg converts x to a query argument. nil stays SQL NULL.
func numArg(x *big.Int) any {
	if x == nil {
		return nil
	}
	return x.String()
}

// numArgZero converts x to a query argument, mapping nil to 0.
func numArgZero(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

// decArg converts d to a query argument with full precision.
func decArg(d decimal.Decimal) string {
	return d.String()
}

// parseNum parses a numeric::text column. NULL yields nil.
func parseNum(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer numeric %q", *s)
	}
	return v, nil
}

// parseNumZero parses a NOT NULL numeric::text column.
func parseNumZero(s string) (*big.Int, error) {
	return parseNum(&s)
}

// parseDec parses a numeric::text column into a decimal.
func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal numeric %q: %w", s, err)
	}
	return d, nil
}

// numParser collects the first parse error across several columns of a row.
type numParser struct {
	err error
}

func (p *numParser) num(s *string) *big.Int {
	v, err := parseNum(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *numParser) numZero(s string) *big.Int {
	v, err := parseNumZero(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *numParser) dec(s string) decimal.Decimal {
	d, err := parseDec(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}
