package datastore

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore はプロセス内メモリに行を保持するStore実装。
// テストとDATA_STORE=memoryでの開発用途に使用する。
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Record
	now    func() time.Time
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]Record),
		now:    time.Now,
	}
}

// Select は条件に一致する行のコピーを返す。
func (s *MemoryStore) Select(ctx context.Context, q Query) ([]Record, error) {
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.tables[t.Name] {
		if matchAll(rec, filters) {
			out = append(out, copyRecord(rec))
		}
	}

	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c := compareValues(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Insert は行を挿入する。未指定のカラムにはデフォルト値を設定する。
func (s *MemoryStore) Insert(ctx context.Context, table string, records []Record) ([]Record, error) {
	t, err := LookupTable(table)
	if err != nil {
		return nil, err
	}

	prepared := make([]Record, 0, len(records))
	for _, rec := range records {
		p, err := prepareInsert(t, rec)
		if err != nil {
			return nil, err
		}
		s.applyDefaults(t, p)
		prepared = append(prepared, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range prepared {
		if s.conflicts(t.Name, p) {
			return nil, ErrConflict
		}
	}
	// 同一バッチ内の重複も検出する
	for i := range prepared {
		for j := i + 1; j < len(prepared); j++ {
			if sameUniqueKey(t.Name, prepared[i], prepared[j]) {
				return nil, ErrConflict
			}
		}
	}

	out := make([]Record, 0, len(prepared))
	for _, p := range prepared {
		s.tables[t.Name] = append(s.tables[t.Name], p)
		out = append(out, copyRecord(p))
	}
	return out, nil
}

// Update は条件に一致する行を更新する。
func (s *MemoryStore) Update(ctx context.Context, table string, values Record, filters ...Filter) ([]Record, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.tables[t.Name] {
		if !matchAll(rec, vf) {
			continue
		}
		for k, val := range v {
			rec[k] = val
		}
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

// Delete は条件に一致する行を削除する。参照している行は参照定義に従い削除またはnullにする。
func (s *MemoryStore) Delete(ctx context.Context, table string, filters ...Filter) (int, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(t, vf), nil
}

func (s *MemoryStore) deleteLocked(t *Table, filters []Filter) int {
	var kept []Record
	var deletedIDs []string
	for _, rec := range s.tables[t.Name] {
		if matchAll(rec, filters) {
			deletedIDs = append(deletedIDs, rec.String("id"))
			continue
		}
		kept = append(kept, rec)
	}
	s.tables[t.Name] = kept

	if len(deletedIDs) > 0 {
		s.applyReferences(t.Name, deletedIDs)
	}
	return len(deletedIDs)
}

// applyReferences は削除された行を参照するカラムに参照動作を適用する。
func (s *MemoryStore) applyReferences(parent string, ids []string) {
	for _, child := range schema {
		for _, col := range child.Columns {
			if col.Ref == nil || col.Ref.Table != parent {
				continue
			}
			switch col.Ref.OnDelete {
			case OnDeleteCascade:
				s.deleteLocked(child, []Filter{In(col.Name, ids)})
			case OnDeleteSetNull:
				for _, rec := range s.tables[child.Name] {
					if slices.Contains(ids, rec.String(col.Name)) {
						rec[col.Name] = nil
					}
				}
			}
		}
	}
}

// Count は条件に一致する行数を返す。
func (s *MemoryStore) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	t, err := LookupTable(table)
	if err != nil {
		return 0, err
	}
	vf, err := validateFilters(t, filters)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.tables[t.Name] {
		if matchAll(rec, vf) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) applyDefaults(t *Table, rec Record) {
	for _, col := range t.Columns {
		if _, ok := rec[col.Name]; ok {
			continue
		}
		switch {
		case col.DefaultNow:
			rec[col.Name] = s.now().UTC()
		case col.Default != nil:
			v, err := normalize(col, col.Default)
			if err == nil {
				rec[col.Name] = v
			}
		default:
			rec[col.Name] = nil
		}
	}
}

// uniqueKeys はマイグレーションで定義した一意制約と同じカラム組。
var uniqueKeys = map[string][][]string{
	TableSocialAccounts: {{"user_id", "platform"}},
	TableSubscribers:    {{"list_id", "email"}},
}

func (s *MemoryStore) conflicts(table string, rec Record) bool {
	for _, existing := range s.tables[table] {
		if existing.String("id") == rec.String("id") {
			return true
		}
		if sameUniqueKey(table, existing, rec) {
			return true
		}
	}
	return false
}

func sameUniqueKey(table string, a, b Record) bool {
	for _, key := range uniqueKeys[table] {
		same := true
		for _, col := range key {
			if compareValues(a[col], b[col]) != 0 {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

func matchAll(rec Record, filters []Filter) bool {
	for _, f := range filters {
		if !match(rec[f.Column], f) {
			return false
		}
	}
	return true
}

func match(v any, f Filter) bool {
	switch f.Op {
	case OpEq:
		if f.Value == nil {
			return v == nil
		}
		return v != nil && compareValues(v, f.Value) == 0
	case OpIn:
		s, ok := v.(string)
		return ok && slices.Contains(f.Value.([]string), s)
	case OpGte:
		return v != nil && f.Value != nil && compareValues(v, f.Value) >= 0
	case OpLt:
		return v != nil && f.Value != nil && compareValues(v, f.Value) < 0
	}
	return false
}

// compareValues は正規形の値を比較する。nilは他のどの値よりも大きいものとして扱う。
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	case int:
		bv, _ := b.(int)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv, _ := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case json.RawMessage:
		bv, _ := b.(json.RawMessage)
		return strings.Compare(string(av), string(bv))
	case []string:
		bv, _ := b.([]string)
		return slices.Compare(av, bv)
	}
	return 0
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		switch tv := v.(type) {
		case []string:
			cp := make([]string, len(tv))
			copy(cp, tv)
			out[k] = cp
		case json.RawMessage:
			cp := make(json.RawMessage, len(tv))
			copy(cp, tv)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
