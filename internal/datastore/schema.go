package datastore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind はカラムの値の種類。Recordに格納される値の型を決める。
type Kind int

const (
	KindText  Kind = iota // string
	KindUUID              // string
	KindTime              // time.Time または nil
	KindJSON              // json.RawMessage または nil
	KindArray             // []string
	KindInt               // int
	KindBool              // bool
)

// DeleteAction は参照先の行が削除されたときの動作。
type DeleteAction int

const (
	OnDeleteCascade DeleteAction = iota + 1
	OnDeleteSetNull
)

// Reference は外部キー参照を表す。
type Reference struct {
	Table    string
	OnDelete DeleteAction
}

// Column はコレクションのカラム定義。
type Column struct {
	Name       string
	Kind       Kind
	Nullable   bool
	Default    any  // 挿入時に未指定の場合の値（MemoryStoreのみ使用）
	DefaultNow bool // 挿入時に未指定の場合は現在時刻
	Ref        *Reference
}

// Table はコレクションのカラムホワイトリスト。
type Table struct {
	Name    string
	Columns []Column
}

// Column は名前からカラム定義を返す。
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames はカラム名を定義順に返す。
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// コレクション名
const (
	TableProfiles       = "profiles"
	TableSocialAccounts = "social_accounts"
	TablePosts          = "posts"
	TableEmailCampaigns = "email_campaigns"
	TableEmailLists     = "email_lists"
	TableSubscribers    = "subscribers"
)

var schema = map[string]*Table{
	TableProfiles: {
		Name: TableProfiles,
		Columns: []Column{
			{Name: "id", Kind: KindUUID},
			{Name: "email", Kind: KindText},
			{Name: "name", Kind: KindText, Default: ""},
			{Name: "avatar_url", Kind: KindText, Default: ""},
			{Name: "theme", Kind: KindText, Default: "system"},
			{Name: "preferences", Kind: KindJSON, Default: json.RawMessage(`{}`)},
			{Name: "created_at", Kind: KindTime, DefaultNow: true},
			{Name: "updated_at", Kind: KindTime, DefaultNow: true},
		},
	},
	TableSocialAccounts: {
		Name: TableSocialAccounts,
		Columns: []Column{
			{Name: "id", Kind: KindUUID},
			{Name: "user_id", Kind: KindUUID},
			{Name: "platform", Kind: KindText},
			{Name: "account_name", Kind: KindText},
			{Name: "access_token", Kind: KindText, Default: ""},
			{Name: "refresh_token", Kind: KindText, Default: ""},
			{Name: "expires_at", Kind: KindTime, Nullable: true},
			{Name: "is_connected", Kind: KindBool, Default: true},
			{Name: "created_at", Kind: KindTime, DefaultNow: true},
			{Name: "updated_at", Kind: KindTime, DefaultNow: true},
		},
	},
	TablePosts: {
		Name: TablePosts,
		Columns: []Column{
			{Name: "id", Kind: KindUUID},
			{Name: "user_id", Kind: KindUUID},
			{Name: "content", Kind: KindText},
			{Name: "image_url", Kind: KindText, Default: ""},
			{Name: "scheduled_for", Kind: KindTime, Nullable: true},
			{Name: "status", Kind: KindText, Default: "draft"},
			{Name: "platforms", Kind: KindArray, Default: []string{}},
			{Name: "performance", Kind: KindJSON, Nullable: true},
			{Name: "created_at", Kind: KindTime, DefaultNow: true},
		},
	},
	TableEmailLists: {
		Name: TableEmailLists,
		Columns: []Column{
			{Name: "id", Kind: KindUUID},
			{Name: "user_id", Kind: KindUUID},
			{Name: "name", Kind: KindText},
			{Name: "description", Kind: KindText, Default: ""},
			{Name: "subscriber_count", Kind: KindInt, Default: 0},
			{Name: "created_at", Kind: KindTime, DefaultNow: true},
		},
	},
	TableSubscribers: {
		Name: TableSubscribers,
		Columns: []Column{
			{Name: "id", Kind: KindUUID},
			{Name: "list_id", Kind: KindUUID, Ref: &Reference{Table: TableEmailLists, OnDelete: OnDeleteCascade}},
			{Name: "email", Kind: KindText},
			{Name: "first_name", Kind: KindText, Default: ""},
			{Name: "last_name", Kind: KindText, Default: ""},
			{Name: "status", Kind: KindText, Default: "subscribed"},
			{Name: "metadata", Kind: KindJSON, Nullable: true},
			{Name: "created_at", Kind: KindTime, DefaultNow: true},
		},
	},
	TableEmailCampaigns: {
		Name: TableEmailCampaigns,
		Columns: []Column{
			{Name: "id", Kind: KindUUID},
			{Name: "user_id", Kind: KindUUID},
			{Name: "name", Kind: KindText},
			{Name: "subject", Kind: KindText},
			{Name: "content", Kind: KindText},
			{Name: "status", Kind: KindText, Default: "draft"},
			{Name: "scheduled_for", Kind: KindTime, Nullable: true},
			{Name: "sent_at", Kind: KindTime, Nullable: true},
			{Name: "recipient_list_id", Kind: KindUUID, Nullable: true, Ref: &Reference{Table: TableEmailLists, OnDelete: OnDeleteSetNull}},
			{Name: "stats", Kind: KindJSON, Nullable: true},
			{Name: "created_at", Kind: KindTime, DefaultNow: true},
		},
	},
}

// LookupTable はホワイトリストからコレクション定義を返す。
func LookupTable(name string) (*Table, error) {
	t, ok := schema[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

// prepareRecord はRecordのカラムを検証し、値を正規形に変換したコピーを返す。
func prepareRecord(t *Table, rec Record) (Record, error) {
	out := make(Record, len(rec))
	for name, v := range rec {
		col, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, name)
		}
		nv, err := normalize(col, v)
		if err != nil {
			return nil, err
		}
		out[name] = nv
	}
	return out, nil
}

// prepareInsert はprepareRecordに加えて、未指定のIDを採番する。
func prepareInsert(t *Table, rec Record) (Record, error) {
	out, err := prepareRecord(t, rec)
	if err != nil {
		return nil, err
	}
	if id, ok := out["id"]; !ok || id == "" {
		out["id"] = uuid.NewString()
	}
	return out, nil
}

// normalize は値をカラム種別の正規形に変換する。
// 正規形: text/uuid→string, time→time.Time|nil, json→json.RawMessage|nil,
// array→[]string, int→int, bool→bool。
func normalize(col Column, v any) (any, error) {
	if v == nil {
		if col.Nullable || col.Kind == KindJSON {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s must not be null", ErrInvalidValue, col.Name)
	}

	switch col.Kind {
	case KindText, KindUUID:
		switch s := v.(type) {
		case string:
			if col.Nullable && col.Kind == KindUUID && s == "" {
				return nil, nil
			}
			return s, nil
		case []byte:
			return string(s), nil
		}
	case KindTime:
		switch tv := v.(type) {
		case time.Time:
			if tv.IsZero() && col.Nullable {
				return nil, nil
			}
			return tv.UTC(), nil
		case *time.Time:
			if tv == nil {
				if col.Nullable {
					return nil, nil
				}
				break
			}
			return tv.UTC(), nil
		}
	case KindJSON:
		switch j := v.(type) {
		case json.RawMessage:
			if len(j) == 0 {
				return nil, nil
			}
			return j, nil
		case []byte:
			if len(j) == 0 {
				return nil, nil
			}
			return json.RawMessage(j), nil
		case string:
			if j == "" {
				return nil, nil
			}
			return json.RawMessage(j), nil
		default:
			b, err := json.Marshal(j)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, col.Name, err)
			}
			return json.RawMessage(b), nil
		}
	case KindArray:
		if a, ok := v.([]string); ok {
			cp := make([]string, len(a))
			copy(cp, a)
			return cp, nil
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int32:
			return int(n), nil
		case int64:
			return int(n), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has unexpected type %T", ErrInvalidValue, col.Name, v)
}
