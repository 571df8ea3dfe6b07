package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/flash-fill/pkg/database/query"
	"github.com/code-payments/flash-fill/pkg/flashfill/attempt"
	"github.com/code-payments/flash-fill/pkg/metrics"
)

const (
	metricsStructName = "attempt.postgres.store"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) attempt.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Save(ctx context.Context, record *attempt.Record) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Save")
	defer tracer.End()

	obj, err := toModel(record)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	err = obj.dbSave(ctx, s.db)
	if err != nil {
		tracer.OnError(err)
		return err
	}

	res := fromModel(obj)
	res.CopyTo(record)

	return nil
}

func (s *store) GetById(ctx context.Context, attemptId string) (*attempt.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetById")
	defer tracer.End()

	obj, err := dbGetById(ctx, s.db, attemptId)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}
	return fromModel(obj), nil
}

func (s *store) GetBySignature(ctx context.Context, signature string) (*attempt.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetBySignature")
	defer tracer.End()

	obj, err := dbGetBySignature(ctx, s.db, signature)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}
	return fromModel(obj), nil
}

func (s *store) GetAllByState(ctx context.Context, state attempt.State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*attempt.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetAllByState")
	defer tracer.End()

	models, err := dbGetAllByState(ctx, s.db, state, cursor, limit, direction)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	res := make([]*attempt.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res, nil
}

func (s *store) CountByState(ctx context.Context, state attempt.State) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "CountByState")
	defer tracer.End()

	count, err := dbCountByState(ctx, s.db, state)
	tracer.OnError(err)
	return count, err
}
