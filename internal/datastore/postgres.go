package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// PostgresStore はPostgreSQLを使用したStore実装。
// 識別子はホワイトリストのカラム名のみを使用し、値はすべてプレースホルダで渡す。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Select は条件に一致する行を返す。
func (s *PostgresStore) Select(ctx context.Context, q Query) ([]Record, error) {
	t, err := LookupTable(q.Table)
	if err != nil {
		return nil, err
	}
	filters, err := validateFilters(t, q.Filters)
	if err != nil {
		return nil, err
	}
	if err := validateOrder(t, q.Order); err != nil {
		return nil, err
	}

	b := &sqlBuilder{}
	b.WriteString("SELECT ")
	b.WriteString(selectList(t))
	b.WriteString(" FROM ")
	b.WriteString(pq.QuoteIdentifier(t.Name))
	b.where(t, filters)
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = pq.QuoteIdentifier(o.Column) + " " + dir
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(b, " LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", t.Name, err)
	}
	defer rows.Close()

	return scanRecords(t, rows)
}

// Insert は行を1件ずつ挿入し、保存後の行を返す。
// 複数行は同一トランザクションで挿入する。
func (s *PostgresStore) Insert(ctx context.Context, table string, records []Record) ([]Record, error) {
	t, err := LookupTable(table)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		p, err := prepareInsert(t, rec)
		if err != nil {
			return nil, err
		}

		cols := sortedKeys(p)
		b := &sqlBuilder{}
		placeholders := make([]string, len(cols))
		quoted := make([]string, len(cols))
		for i, c := range cols {
			col, _ := t.Column(c)
			quoted[i] = pq.QuoteIdentifier(c)
			placeholders[i] = b.arg(encodeValue(col, p[c]))
		}
		fmt.Fprintf(b, "INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			pq.QuoteIdentifier(t.Name),
			strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "),
			selectList(t),
		)

		rows, err := tx.QueryContext(ctx, b.String(), b.args...)
		if err != nil {
			return nil, mapPQError(fmt.Errorf("failed to insert into %s: %w", t.Name, err))
		}
		inserted, err := scanRecords(t, rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, inserted...)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPQError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return out, nil
}

// Update は条件に一致する行を更新し、更新後の行を返す。
func (s *PostgresStore) Update(ctx context.Context, table string, values Record, filters ...Filter) ([]Record, error) {
	t, err := LookupTable(table)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, ErrUnfiltered
	}
	vf, err := validateFilters(t, filters)
	if err != nil {
		return nil, err
	}
	v, err := prepareRecord(t, values)
	if err != nil {
		return nil, err
	}
	delete(v, "id")
	if len(v) == 0 {
		return s.Select(ctx, Query{Table: table, Filters: filters})
	}

	b := &sqlBuilder{}
	cols := sortedKeys(v)
	sets := make([]string, len(cols))
	for i, c := range cols {
		col, _ := t.Column(c)
		sets[i] = pq.QuoteIdentifier(c) + " = " + b.arg(encodeValue(col, v[c]))
	}
	b.WriteString("UPDATE ")
	b.WriteString(pq.QuoteIdentifier(t.Name))
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.where(t, vf)
	b.WriteString(" RETURNING ")
	b.WriteString(selectList(t))

	rows, err := s.db.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, mapPQError(fmt.Errorf("failed to update %s: %w", t.Name, err))
	}
	defer rows.Close()

	return scanRecords(t, rows)
}

// Delete は条件に一致する行を削除し、削除件数を返す。
func (s *PostgresStore) Delete(ctx context.Context, table string, filters ...Filter) (int, error) {
	t, err := LookupTable(table)
	if err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, ErrUnfiltered
	}
	vf, err := validateFilters(t, filters)
	if err != nil {
		return 0, err
	}

	b := &sqlBuilder{}
	b.WriteString("DELETE FROM ")
	b.WriteString(pq.QuoteIdentifier(t.Name))
	b.where(t, vf)

	result, err := s.db.ExecContext(ctx, b.String(), b.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", t.Name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Count は条件に一致する行数を返す。
func (s *PostgresStore) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	t, err := LookupTable(table)
	if err != nil {
		return 0, err
	}
	vf, err := validateFilters(t, filters)
	if err != nil {
		return 0, err
	}

	b := &sqlBuilder{}
	b.WriteString("SELECT count(*) FROM ")
	b.WriteString(pq.QuoteIdentifier(t.Name))
	b.where(t, vf)

	var n int
	if err := s.db.QueryRowContext(ctx, b.String(), b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.Name, err)
	}
	return n, nil
}

// sqlBuilder はSQL文字列と位置パラメータ($n)を組み立てる。
type sqlBuilder struct {
	strings.Builder
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *sqlBuilder) where(t *Table, filters []Filter) {
	if len(filters) == 0 {
		return
	}
	conds := make([]string, len(filters))
	for i, f := range filters {
		col, _ := t.Column(f.Column)
		name := pq.QuoteIdentifier(f.Column)
		switch f.Op {
		case OpEq:
			if f.Value == nil {
				conds[i] = name + " IS NULL"
			} else {
				conds[i] = name + " = " + b.arg(encodeValue(col, f.Value))
			}
		case OpIn:
			conds[i] = name + "::text = ANY(" + b.arg(pq.Array(f.Value.([]string))) + ")"
		case OpGte:
			conds[i] = name + " >= " + b.arg(encodeValue(col, f.Value))
		case OpLt:
			conds[i] = name + " < " + b.arg(encodeValue(col, f.Value))
		}
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
}

func selectList(t *Table) string {
	names := t.ColumnNames()
	for i, n := range names {
		names[i] = pq.QuoteIdentifier(n)
	}
	return strings.Join(names, ", ")
}

// encodeValue は正規形の値をlib/pqに渡せる値に変換する。
func encodeValue(col Column, v any) any {
	if v == nil {
		return nil
	}
	switch col.Kind {
	case KindArray:
		return pq.Array(v.([]string))
	case KindJSON:
		return string(v.(json.RawMessage))
	}
	return v
}

// scanRecords はカラム種別に応じたスキャン先を使って行をRecordに変換する。
func scanRecords(t *Table, rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		dests := make([]any, len(t.Columns))
		for i, col := range t.Columns {
			switch col.Kind {
			case KindText, KindUUID:
				dests[i] = &sql.NullString{}
			case KindTime:
				dests[i] = &sql.NullTime{}
			case KindJSON:
				dests[i] = &[]byte{}
			case KindArray:
				dests[i] = &pq.StringArray{}
			case KindInt:
				dests[i] = &sql.NullInt64{}
			case KindBool:
				dests[i] = &sql.NullBool{}
			}
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t.Name, err)
		}

		rec := make(Record, len(t.Columns))
		for i, col := range t.Columns {
			switch d := dests[i].(type) {
			case *sql.NullString:
				if d.Valid {
					rec[col.Name] = d.String
				} else if col.Nullable {
					rec[col.Name] = nil
				} else {
					rec[col.Name] = ""
				}
			case *sql.NullTime:
				if d.Valid {
					rec[col.Name] = d.Time.UTC()
				} else {
					rec[col.Name] = nil
				}
			case *[]byte:
				if *d == nil {
					rec[col.Name] = nil
				} else {
					rec[col.Name] = json.RawMessage(*d)
				}
			case *pq.StringArray:
				rec[col.Name] = []string(*d)
			case *sql.NullInt64:
				rec[col.Name] = int(d.Int64)
			case *sql.NullBool:
				rec[col.Name] = d.Bool
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", t.Name, err)
	}
	return out, nil
}

// mapPQError は一意制約違反をErrConflictに変換する。
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	return err
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Store = (*PostgresStore)(nil)
