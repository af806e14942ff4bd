package query

import (
	"context"
	"fmt"
	"reflect"
)

// BatchSize bounds the number of values placed in one IN list.
const BatchSize = 100

// Chunks splits values into slices of at most size elements.
func Chunks(values []any, size int) [][]any {
	if size <= 0 {
		size = BatchSize
	}
	var out [][]any
	for len(values) > 0 {
		n := min(size, len(values))
		out = append(out, values[:n:n])
		values = values[n:]
	}
	return out
}

// UpdateBatch applies values to the rows of s whose primary key is in pks,
// one statement per chunk, and returns the total rows affected.
func (s *Set) UpdateBatch(ctx context.Context, pks []any, values map[string]any) (int64, error) {
	var total int64
	for _, chunk := range Chunks(pks, BatchSize) {
		n, err := s.Where(In(s.model.PK.Column, chunk...)).Update(ctx, values)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DeleteBatch removes the rows of s whose primary key is in pks.
func (s *Set) DeleteBatch(ctx context.Context, pks []any) (int64, error) {
	var total int64
	for _, chunk := range Chunks(pks, BatchSize) {
		n, err := s.Where(In(s.model.PK.Column, chunk...)).Delete(ctx)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// ValuesBatch is Values restricted to rows whose column is in keys.
func (s *Set) ValuesBatch(ctx context.Context, column, keyColumn string, keys []any) ([]any, error) {
	var out []any
	for _, chunk := range Chunks(keys, BatchSize) {
		vals, err := s.Where(In(keyColumn, chunk...)).Values(ctx, column)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

// LoadBatch is Load restricted to rows whose column is in keys.
func (s *Set) LoadBatch(ctx context.Context, column string, keys []any) ([]any, error) {
	var out []any
	for _, chunk := range Chunks(keys, BatchSize) {
		recs, err := s.Where(In(column, chunk...)).Load(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Keys returns the primary keys of the set, typed like the model's key field.
func (s *Set) Keys(ctx context.Context) ([]any, error) {
	pk := s.model.PK
	q, args, err := s.selectSQL(pk.Column)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		dst := reflect.New(pk.Type())
		if err := rows.Scan(dst.Interface()); err != nil {
			return nil, fmt.Errorf("scan %s.%s: %w", s.model.Name, pk.Column, err)
		}
		out = append(out, dst.Elem().Interface())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// KeysIn is Keys restricted to pks, batched.
func (s *Set) KeysIn(ctx context.Context, pks []any) ([]any, error) {
	var out []any
	for _, chunk := range Chunks(pks, BatchSize) {
		keys, err := s.Where(In(s.model.PK.Column, chunk...)).Keys(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
	}
	return out, nil
}
