package plugin

import (
	"database/sql"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"quill/internal/value"
)

// PrefStore persists per-plugin settings across sessions. Values are
// encoded as CBOR blobs keyed by (plugin, name) in whichever SQL backend
// the configuration names; sqlite3 is the usual choice for a local client.
type PrefStore struct {
	db     *sql.DB
	driver string
}

// OpenPrefStore opens the backing database and ensures the table exists.
func OpenPrefStore(driver, dsn string) (*PrefStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("prefs: open %s: %w", driver, err)
	}

	blob := "BLOB"
	if driver == "postgres" {
		blob = "BYTEA"
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plugin_prefs (
		plugin TEXT NOT NULL,
		name   TEXT NOT NULL,
		body   %s   NOT NULL,
		PRIMARY KEY (plugin, name)
	)`, blob)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefs: create table: %w", err)
	}

	return &PrefStore{db: db, driver: driver}, nil
}

func (s *PrefStore) Close() error {
	return s.db.Close()
}

// rebind swaps ? placeholders for $n when talking to postgres.
func (s *PrefStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// Set stores a preference value, replacing any previous one.
func (s *PrefStore) Set(plugin, name string, v value.Value) error {
	native, err := toNative(v)
	if err != nil {
		return err
	}
	body, err := cbor.Marshal(native)
	if err != nil {
		return fmt.Errorf("prefs: encode %s/%s: %w", plugin, name, err)
	}

	query := `REPLACE INTO plugin_prefs (plugin, name, body) VALUES (?, ?, ?)`
	if s.driver == "postgres" {
		query = `INSERT INTO plugin_prefs (plugin, name, body) VALUES (?, ?, ?)
			ON CONFLICT (plugin, name) DO UPDATE SET body = EXCLUDED.body`
	}
	if _, err := s.db.Exec(s.rebind(query), plugin, name, body); err != nil {
		return fmt.Errorf("prefs: set %s/%s: %w", plugin, name, err)
	}
	return nil
}

// Get loads a preference value; the second result is false when unset.
func (s *PrefStore) Get(plugin, name string) (value.Value, bool, error) {
	var body []byte
	query := s.rebind(`SELECT body FROM plugin_prefs WHERE plugin = ? AND name = ?`)
	err := s.db.QueryRow(query, plugin, name).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("prefs: get %s/%s: %w", plugin, name, err)
	}

	var native any
	if err := cbor.Unmarshal(body, &native); err != nil {
		return nil, false, fmt.Errorf("prefs: decode %s/%s: %w", plugin, name, err)
	}
	v, err := fromNative(native)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Delete removes a preference; deleting an unset name is not an error.
func (s *PrefStore) Delete(plugin, name string) error {
	query := s.rebind(`DELETE FROM plugin_prefs WHERE plugin = ? AND name = ?`)
	if _, err := s.db.Exec(query, plugin, name); err != nil {
		return fmt.Errorf("prefs: delete %s/%s: %w", plugin, name, err)
	}
	return nil
}

// List returns the names set for one plugin, in store order.
func (s *PrefStore) List(plugin string) ([]string, error) {
	query := s.rebind(`SELECT name FROM plugin_prefs WHERE plugin = ? ORDER BY name`)
	rows, err := s.db.Query(query, plugin)
	if err != nil {
		return nil, fmt.Errorf("prefs: list %s: %w", plugin, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("prefs: list %s: %w", plugin, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// toNative lowers a value to plain Go data for encoding. Only primitives,
// lists of storable values and string-keyed maps are storable.
func toNative(v value.Value) (any, error) {
	switch v := v.(type) {
	case *value.Nil:
		return nil, nil
	case *value.Boolean:
		return v.Value, nil
	case *value.Number:
		return v.Value, nil
	case *value.String:
		return v.Value, nil
	case *value.List:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			native, err := toNative(item)
			if err != nil {
				return nil, err
			}
			out[i] = native
		}
		return out, nil
	case *value.Map:
		out := make(map[string]any, len(v.Pairs))
		for _, pair := range v.Pairs {
			key, ok := pair.Key.(*value.String)
			if !ok {
				return nil, fmt.Errorf("prefs: map keys must be strings, got %s", pair.Key.Type())
			}
			native, err := toNative(pair.Value)
			if err != nil {
				return nil, err
			}
			out[key.Value] = native
		}
		return out, nil
	}
	return nil, fmt.Errorf("prefs: %s values are not storable", v.Type())
}

func fromNative(native any) (value.Value, error) {
	switch n := native.(type) {
	case nil:
		return value.NIL, nil
	case bool:
		return value.NativeBool(n), nil
	case float64:
		return &value.Number{Value: n}, nil
	case uint64:
		return &value.Number{Value: float64(n)}, nil
	case int64:
		return &value.Number{Value: float64(n)}, nil
	case string:
		return &value.String{Value: n}, nil
	case []any:
		out := &value.List{Items: make([]value.Value, len(n))}
		for i, item := range n {
			v, err := fromNative(item)
			if err != nil {
				return nil, err
			}
			out.Items[i] = v
		}
		return out, nil
	case map[string]any:
		out := value.NewMap()
		for k, item := range n {
			v, err := fromNative(item)
			if err != nil {
				return nil, err
			}
			out.Set(&value.String{Value: k}, v)
		}
		return out, nil
	case map[any]any:
		out := value.NewMap()
		for k, item := range n {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("prefs: unexpected map key %T", k)
			}
			v, err := fromNative(item)
			if err != nil {
				return nil, err
			}
			out.Set(&value.String{Value: key}, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("prefs: unexpected stored type %T", native)
}
