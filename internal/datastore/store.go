// Package datastore は外部の構造化データストアへの汎用インターフェースを提供する。
// 行はRecord（カラム名→値）として扱い、型付きエンティティへの変換はrepositoryパッケージが担う。
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownTable はホワイトリストにないコレクションを指定した場合のエラー。
	ErrUnknownTable = errors.New("datastore: unknown table")
	// ErrUnknownColumn はホワイトリストにないカラムを指定した場合のエラー。
	ErrUnknownColumn = errors.New("datastore: unknown column")
	// ErrInvalidValue はカラム種別に合わない値を指定した場合のエラー。
	ErrInvalidValue = errors.New("datastore: invalid value")
	// ErrUnfiltered はフィルタなしの更新・削除を拒否した場合のエラー。
	ErrUnfiltered = errors.New("datastore: update or delete requires a filter")
	// ErrConflict は一意制約違反のエラー。
	ErrConflict = errors.New("datastore: unique constraint violation")
)

// Record は1行分のデータ。値は各カラム種別の正規形で格納される。
type Record map[string]any

// String はカラムの文字列値を返す。未設定またはnullの場合は空文字を返す。
func (r Record) String(col string) string {
	s, _ := r[col].(string)
	return s
}

// Int はカラムの整数値を返す。
func (r Record) Int(col string) int {
	n, _ := r[col].(int)
	return n
}

// Bool はカラムの真偽値を返す。
func (r Record) Bool(col string) bool {
	b, _ := r[col].(bool)
	return b
}

// Time はカラムの時刻値を返す。nullの場合はゼロ値を返す。
func (r Record) Time(col string) time.Time {
	t, _ := r[col].(time.Time)
	return t
}

// TimePtr はカラムの時刻値をポインタで返す。nullの場合はnilを返す。
func (r Record) TimePtr(col string) *time.Time {
	t, ok := r[col].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

// JSON はカラムのJSON値を返す。nullの場合はnilを返す。
func (r Record) JSON(col string) json.RawMessage {
	j, _ := r[col].(json.RawMessage)
	return j
}

// Strings はカラムの文字列配列を返す。
func (r Record) Strings(col string) []string {
	a, _ := r[col].([]string)
	return a
}

// Op はフィルタの比較演算子。
type Op string

const (
	OpEq  Op = "eq"
	OpIn  Op = "in"
	OpGte Op = "gte"
	OpLt  Op = "lt"
)

// Filter はカラムに対する条件。複数指定した場合はAND結合される。
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq は等価条件を返す。値がnilの場合はIS NULLとして扱う。
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In は値集合への包含条件を返す。
func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// Gte は以上条件を返す。
func Gte(column string, value any) Filter {
	return Filter{Column: column, Op: OpGte, Value: value}
}

// Lt は未満条件を返す。
func Lt(column string, value any) Filter {
	return Filter{Column: column, Op: OpLt, Value: value}
}

// Order は並び順の指定。
type Order struct {
	Column string
	Desc   bool
}

// Query はSelectの条件。
type Query struct {
	Table   string
	Filters []Filter
	Order   []Order
	Limit   int // 0は無制限
}

// Store は構造化データストアのインターフェース。
// 操作は呼び出し単位で完結し、リトライは行わない。
type Store interface {
	// Select は条件に一致する行を返す。
	Select(ctx context.Context, q Query) ([]Record, error)
	// Insert は行を挿入し、保存後の行を返す。idが未指定の場合は採番する。
	Insert(ctx context.Context, table string, records []Record) ([]Record, error)
	// Update は条件に一致する行を更新し、更新後の行を返す。
	Update(ctx context.Context, table string, values Record, filters ...Filter) ([]Record, error)
	// Delete は条件に一致する行を削除し、削除件数を返す。
	Delete(ctx context.Context, table string, filters ...Filter) (int, error)
	// Count は条件に一致する行数を返す。
	Count(ctx context.Context, table string, filters ...Filter) (int, error)
}

// validateFilters はフィルタのカラムと値を検証し、値を正規形に変換したコピーを返す。
func validateFilters(t *Table, filters []Filter) ([]Filter, error) {
	out := make([]Filter, len(filters))
	for i, f := range filters {
		col, ok := t.Column(f.Column)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, f.Column)
		}
		switch f.Op {
		case OpIn:
			if _, ok := f.Value.([]string); !ok {
				return nil, fmt.Errorf("%w: %s: IN requires []string", ErrInvalidValue, f.Column)
			}
			out[i] = f
		case OpEq, OpGte, OpLt:
			if f.Value == nil {
				out[i] = f
				continue
			}
			v, err := normalize(col, f.Value)
			if err != nil {
				return nil, err
			}
			out[i] = Filter{Column: f.Column, Op: f.Op, Value: v}
		default:
			return nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidValue, f.Op)
		}
	}
	return out, nil
}

// validateOrder は並び順のカラムを検証する。
func validateOrder(t *Table, order []Order) error {
	for _, o := range order {
		if _, ok := t.Column(o.Column); !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, o.Column)
		}
	}
	return nil
}
