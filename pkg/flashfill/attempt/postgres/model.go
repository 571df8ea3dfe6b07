package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/code-payments/flash-fill/pkg/database/postgres"
	q "github.com/code-payments/flash-fill/pkg/database/query"
	"github.com/code-payments/flash-fill/pkg/flashfill/attempt"
	"github.com/code-payments/flash-fill/pkg/pointer"
)

const (
	tableName = "flashfill__core_attempt"

	allColumns = `id, attempt_id, signature, borrower, blockhash, amount, slot, state, error_message, version, created_at`
)

type model struct {
	Id           sql.NullInt64  `db:"id"`
	AttemptId    string         `db:"attempt_id"`
	Signature    string         `db:"signature"`
	Borrower     string         `db:"borrower"`
	Blockhash    string         `db:"blockhash"`
	Amount       uint64         `db:"amount"`
	Slot         uint64         `db:"slot"`
	State        uint8          `db:"state"`
	ErrorMessage sql.NullString `db:"error_message"`
	Version      uint64         `db:"version"`
	CreatedAt    time.Time      `db:"created_at"`
}

func toModel(obj *attempt.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:           sql.NullInt64{Int64: int64(obj.Id), Valid: true},
		AttemptId:    obj.AttemptId,
		Signature:    obj.Signature,
		Borrower:     obj.Borrower,
		Blockhash:    obj.Blockhash,
		Amount:       obj.Amount,
		Slot:         obj.Slot,
		State:        uint8(obj.State),
		ErrorMessage: sql.NullString{String: *pointer.StringOrDefault(obj.ErrorMessage, ""), Valid: obj.ErrorMessage != nil},
		Version:      obj.Version,
		CreatedAt:    obj.CreatedAt,
	}, nil
}

func fromModel(m *model) *attempt.Record {
	return &attempt.Record{
		Id:           uint64(m.Id.Int64),
		AttemptId:    m.AttemptId,
		Signature:    m.Signature,
		Borrower:     m.Borrower,
		Blockhash:    m.Blockhash,
		Amount:       m.Amount,
		Slot:         m.Slot,
		State:        attempt.State(m.State),
		ErrorMessage: pointer.StringIfValid(m.ErrorMessage.Valid, m.ErrorMessage.String),
		Version:      m.Version,
		CreatedAt:    m.CreatedAt,
	}
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(attempt_id, signature, borrower, blockhash, amount, slot, state, error_message, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9 + 1, $10)

			ON CONFLICT (attempt_id)
			DO UPDATE
				SET slot = $6, state = $7, error_message = $8, version = ` + tableName + `.version + 1
				WHERE ` + tableName + `.attempt_id = $1 AND ` + tableName + `.version = $9

			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.AttemptId,
			m.Signature,
			m.Borrower,
			m.Blockhash,
			m.Amount,
			m.Slot,
			m.State,
			m.ErrorMessage,
			m.Version,
			m.CreatedAt,
		).StructScan(m)
		if err != nil {
			return pgutil.CheckNoRows(pgutil.CheckUniqueViolation(err, attempt.ErrExists), attempt.ErrStaleVersion)
		}
		return nil
	})
}

func dbGetById(ctx context.Context, db *sqlx.DB, attemptId string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE attempt_id = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, attemptId)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, attempt.ErrNotFound)
	}
	return res, nil
}

func dbGetBySignature(ctx context.Context, db *sqlx.DB, signature string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE signature = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, signature)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, attempt.ErrNotFound)
	}
	return res, nil
}

func dbGetAllByState(ctx context.Context, db *sqlx.DB, state attempt.State, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE (state = $1)`

	opts := []interface{}{state}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := pgutil.ExecuteRetryable(func() error {
		return db.SelectContext(ctx, &res, query, opts...)
	})
	if err != nil {
		return nil, pgutil.CheckNoRows(err, attempt.ErrNotFound)
	}

	if len(res) == 0 {
		return nil, attempt.ErrNotFound
	}
	return res, nil
}

func dbCountByState(ctx context.Context, db *sqlx.DB, state attempt.State) (uint64, error) {
	var res uint64

	query := `SELECT COUNT(*) FROM ` + tableName + `
		WHERE state = $1`

	err := pgutil.ExecuteRetryable(func() error {
		return db.GetContext(ctx, &res, query, state)
	})
	if err != nil {
		return 0, err
	}
	return res, nil
}
