package internal

import (
	"context"
	"fmt"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgCounterStore struct {
	DB *pgxpool.Pool
}

const (
	createTableSql = `
		CREATE TABLE IF NOT EXISTS payment_totals (
			processor_id   SMALLINT PRIMARY KEY,
			total_requests BIGINT NOT NULL DEFAULT 0,
			total_cents    BIGINT NOT NULL DEFAULT 0
		)`
	incrementSql = `
		INSERT INTO payment_totals(processor_id, total_requests, total_cents)
		VALUES ($1, $2, $3)
		ON CONFLICT (processor_id) DO UPDATE SET
			total_requests = payment_totals.total_requests + EXCLUDED.total_requests,
			total_cents = payment_totals.total_cents + EXCLUDED.total_cents`
	loadSql = `SELECT processor_id, total_requests, total_cents FROM payment_totals`
)

func NewPgCounterStore(ctx context.Context, dsn string) (*PgCounterStore, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.Exec(ctx, createTableSql); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating payment_totals: %w", err)
	}
	return &PgCounterStore{DB: db}, nil
}

func (s *PgCounterStore) Add(ctx context.Context, u UpstreamId, requests, cents int64) error {
	conn, err := s.DB.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, incrementSql, int16(u), requests, cents)
	return err
}

func (s *PgCounterStore) Load(ctx context.Context) (Totals, error) {
	var totals Totals

	conn, err := s.DB.Acquire(ctx)
	if err != nil {
		return totals, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, loadSql)
	if err != nil {
		return totals, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int16
		var c Counter
		if err := rows.Scan(&id, &c.Requests, &c.Cents); err != nil {
			return totals, err
		}
		u := UpstreamId(id)
		if !u.Valid() {
			continue
		}
		totals[u] = c
	}
	return totals, rows.Err()
}

func (s *PgCounterStore) Close() {
	s.DB.Close()
}
