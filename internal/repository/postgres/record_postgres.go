package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"polegrid/internal/model"
	"polegrid/internal/repository"
)

// RecordPostgres is a PostgreSQL implementation of repository.RecordStore.
// Each record is one row; submitted fields are kept as JSONB and insertion order comes from seq.
type RecordPostgres struct {
	db *sql.DB
}

// NewRecordPostgres creates a new RecordPostgres store.
func NewRecordPostgres(db *sql.DB) *RecordPostgres {
	return &RecordPostgres{db: db}
}

var _ repository.RecordStore = (*RecordPostgres)(nil)

// Read returns every record grouped by collection.
func (r *RecordPostgres) Read(ctx context.Context) (model.Document, error) {
	const q = `
		SELECT id, collection, data, created_at
		FROM records
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doc := model.NewDocument()
	for rows.Next() {
		var collection string
		rec, err := scanRecord(rows, &collection)
		if err != nil {
			return nil, err
		}
		doc[collection] = append(doc[collection], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Write replaces all rows with the contents of doc inside one transaction.
func (r *RecordPostgres) Write(ctx context.Context, doc model.Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return err
	}
	for _, collection := range model.Collections {
		for _, rec := range doc[collection] {
			if err := insertRecord(ctx, tx, collection, rec); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Append inserts one record row.
func (r *RecordPostgres) Append(ctx context.Context, collection string, rec model.Record) error {
	if !repository.KnownCollection(collection) {
		return fmt.Errorf("%w: %s", repository.ErrUnknownCollection, collection)
	}
	return insertRecord(ctx, r.db, collection, rec)
}

// List returns the rows of one collection in insertion order.
func (r *RecordPostgres) List(ctx context.Context, collection string) ([]model.Record, error) {
	if !repository.KnownCollection(collection) {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownCollection, collection)
	}
	const q = `
		SELECT id, collection, data, created_at
		FROM records
		WHERE collection = $1
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Record, 0)
	for rows.Next() {
		var c string
		rec, err := scanRecord(rows, &c)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Ping checks database connectivity.
func (r *RecordPostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, ex execer, collection string, rec model.Record) error {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO records (id, collection, data, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = ex.ExecContext(ctx, q, rec.ID, collection, data, createdAt)
	return err
}

func scanRecord(rows *sql.Rows, collection *string) (model.Record, error) {
	var (
		rec  model.Record
		data []byte
	)
	if err := rows.Scan(&rec.ID, collection, &data, &rec.CreatedAt); err != nil {
		return model.Record{}, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec.Fields); err != nil {
		return model.Record{}, fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
