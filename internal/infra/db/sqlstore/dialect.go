package sqlstore

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Dialect hides the few syntax differences between postgres and mysql.
// Queries are written with ? placeholders and rebound for postgres.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// Rebind ganti ? jadi $1, $2, ... untuk postgres
func (d Dialect) Rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// Upsert returns the conflict clause that overwrites cols on a key collision.
func (d Dialect) Upsert(key string, cols ...string) string {
	sets := make([]string, 0, len(cols))
	if d == Postgres {
		for _, c := range cols {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
		return " ON CONFLICT (" + key + ") DO UPDATE SET " + strings.Join(sets, ", ")
	}
	for _, c := range cols {
		sets = append(sets, c+" = VALUES("+c+")")
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// InsertIgnore builds an insert that silently skips duplicate keys.
func (d Dialect) InsertIgnore(table, cols string, n int) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	if d == Postgres {
		return "INSERT INTO " + table + " (" + cols + ") VALUES (" + ph + ") ON CONFLICT DO NOTHING"
	}
	return "INSERT IGNORE INTO " + table + " (" + cols + ") VALUES (" + ph + ")"
}

func marshalJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func unmarshalJSON(s sql.NullString, dst any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func nullTime(ns sql.NullTime) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := ns.Time.UTC()
	return &t
}
