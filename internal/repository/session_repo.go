package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ico-relayer/internal/domain"
)

const sessionColumns = `
	id, derivation_index,
	deposit_address, deposit_secret,
	pay_chain, pay_type, pay_token_contract,
	buyer_settlement_address,
	fiat_amount, required_chain_amount,
	payment_state, settlement_state,
	last_observed_amount,
	deposit_tx_ref, settlement_tx_ref, forward_tx_ref, sweep_tx_ref,
	failure_reason,
	created_at, confirmed_at, executed_at, swept_at`

// SessionRepository is the Postgres-backed SessionStore. Big integer amounts
// are stored as decimal strings; the derivation index comes from a dedicated
// sequence so concurrent creates can never share an index.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) NextDerivationIndex(ctx context.Context) (int64, error) {
	var index int64
	err := r.pool.QueryRow(ctx, `SELECT nextval('session_derivation_index_seq')`).Scan(&index)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate derivation index: %w", err)
	}
	return index, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO payment_sessions (
			id, derivation_index,
			deposit_address, deposit_secret,
			pay_chain, pay_type, pay_token_contract,
			buyer_settlement_address,
			fiat_amount, required_chain_amount,
			payment_state, settlement_state
		) VALUES (
			$1, $2,
			$3, $4,
			$5, $6, $7,
			$8,
			$9, $10,
			$11, $12
		)
		RETURNING created_at
	`

	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	requiredStr := "0"
	if s.RequiredChainAmount != nil {
		requiredStr = s.RequiredChainAmount.String()
	}

	err := r.pool.QueryRow(
		ctx, query,
		s.ID,
		s.DerivationIndex,
		s.DepositAddress,
		s.DepositSecret,
		s.PayChain,
		s.PayType,
		s.PayTokenContract,
		s.BuyerSettlementAddress,
		s.FiatAmount,
		requiredStr,
		domain.PaymentPending,
		domain.SettlementPending,
	).Scan(&s.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	s.PaymentState = domain.PaymentPending
	s.SettlementState = domain.SettlementPending

	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE id = $1`

	session, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// UpdatePaymentState is a conditional transition: the row is touched only when
// the stored state equals from, and zero rows affected reports a mismatch, not
// an error.
func (r *SessionRepository) UpdatePaymentState(ctx context.Context, id string, from, to domain.PaymentState, patch *domain.PaymentPatch) (bool, error) {
	query := `
		UPDATE payment_sessions
		SET
			payment_state = $1,
			deposit_tx_ref = COALESCE($2, deposit_tx_ref),
			confirmed_at = COALESCE($3, confirmed_at)
		WHERE id = $4 AND payment_state = $5
	`

	if patch == nil {
		patch = &domain.PaymentPatch{}
	}

	result, err := r.pool.Exec(ctx, query, to, patch.DepositTxRef, patch.ConfirmedAt, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update payment state: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// UpdateSettlementState is the settlement claim guard. Exactly one of N
// concurrent callers with the same from state gets true.
func (r *SessionRepository) UpdateSettlementState(ctx context.Context, id string, from, to domain.SettlementState, patch *domain.SettlementPatch) (bool, error) {
	query := `
		UPDATE payment_sessions
		SET
			settlement_state = $1,
			settlement_tx_ref = COALESCE($2, settlement_tx_ref),
			forward_tx_ref = COALESCE($3, forward_tx_ref),
			failure_reason = COALESCE($4, failure_reason),
			executed_at = COALESCE($5, executed_at)
		WHERE id = $6 AND settlement_state = $7
	`

	if patch == nil {
		patch = &domain.SettlementPatch{}
	}

	result, err := r.pool.Exec(
		ctx, query,
		to,
		patch.SettlementTxRef,
		patch.ForwardTxRef,
		patch.FailureReason,
		patch.ExecutedAt,
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update settlement state: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *SessionRepository) RecordObservedAmount(ctx context.Context, id string, amount *big.Int) error {
	amountStr := "0"
	if amount != nil {
		amountStr = amount.String()
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE payment_sessions SET last_observed_amount = $1 WHERE id = $2`,
		amountStr, id)
	if err != nil {
		return fmt.Errorf("failed to record observed amount: %w", err)
	}

	return nil
}

func (r *SessionRepository) ListByPaymentState(ctx context.Context, state domain.PaymentState, limit int) ([]*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM payment_sessions
		WHERE payment_state = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, state, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by payment state: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *SessionRepository) ListSweepable(ctx context.Context, limit int) ([]*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM payment_sessions
		WHERE settlement_state = $1 AND sweep_tx_ref IS NULL
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, domain.SettlementExecuted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweepable sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *SessionRepository) MarkSwept(ctx context.Context, id, txRef string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE payment_sessions SET sweep_tx_ref = $1, swept_at = NOW() WHERE id = $2`,
		txRef, id)
	if err != nil {
		return fmt.Errorf("failed to mark session swept: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}

	return nil
}

func collectSessions(rows pgx.Rows) ([]*domain.Session, error) {
	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s           domain.Session
		requiredStr string
		observedStr *string
	)

	err := row.Scan(
		&s.ID,
		&s.DerivationIndex,
		&s.DepositAddress,
		&s.DepositSecret,
		&s.PayChain,
		&s.PayType,
		&s.PayTokenContract,
		&s.BuyerSettlementAddress,
		&s.FiatAmount,
		&requiredStr,
		&s.PaymentState,
		&s.SettlementState,
		&observedStr,
		&s.DepositTxRef,
		&s.SettlementTxRef,
		&s.ForwardTxRef,
		&s.SweepTxRef,
		&s.FailureReason,
		&s.CreatedAt,
		&s.ConfirmedAt,
		&s.ExecutedAt,
		&s.SweptAt,
	)
	if err != nil {
		return nil, err
	}

	s.RequiredChainAmount, _ = new(big.Int).SetString(requiredStr, 10)
	if s.RequiredChainAmount == nil {
		s.RequiredChainAmount = big.NewInt(0)
	}

	if observedStr != nil {
		s.LastObservedAmount, _ = new(big.Int).SetString(*observedStr, 10)
	}

	return &s, nil
}
