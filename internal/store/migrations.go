package store

import (
	"database/sql"
	"time"

	"github.com/benredmond/apex-sub002/internal/logging"
)

// migration is one additive schema change, guarded so it is safe to run
// against a fresh database or one already at this version.
type migration struct {
	version int
	apply   func(db *sql.DB) error
}

// migrations lists every schema change since the initial release, in the
// teacher's additive-ALTER-TABLE style: new columns are added guarded by
// a PRAGMA table_info check rather than destructive rewrites.
var migrations = []migration{
	{
		version: 1,
		apply: func(db *sql.DB) error {
			return addColumnIfMissing(db, "patterns", "fts_dirty", "INTEGER NOT NULL DEFAULT 0")
		},
	},
	{
		version: 2,
		apply: func(db *sql.DB) error {
			if err := createFTSTable(db); err != nil {
				return err
			}
			return backfillFTS(db)
		},
	},
}

// RunMigrations applies every migration not yet recorded in
// schema_migrations, in order, skipping any already applied.
func RunMigrations(db *sql.DB) error {
	applied := map[int]bool{}
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		logging.BootDebug("applying migration %d", m.version)
		if err := m.apply(db); err != nil {
			return err
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`,
			m.version, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, ddl string) error {
	rows, err := db.Query(`PRAGMA table_info(` + table + `)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	_, err = db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + ddl)
	return err
}

// createFTSTable creates the FTS5 index over pattern title/summary/tags
// (plus an unindexed id). It is a regular FTS5 table holding its own copy
// of those columns; reindexFTS keeps it in step with patterns.
func createFTSTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS patterns_fts USING fts5(
		id UNINDEXED,
		title,
		summary,
		tags
	)`)
	return err
}

func backfillFTS(db *sql.DB) error {
	rows, err := db.Query(`
		SELECT p.id, p.title, p.summary,
		       COALESCE(GROUP_CONCAT(pt.tag, ' '), '')
		FROM patterns p
		LEFT JOIN pattern_tags pt ON pt.pattern_id = p.id
		GROUP BY p.id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	type row struct{ id, title, summary, tags string }
	var buffered []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.title, &r.summary, &r.tags); err != nil {
			return err
		}
		buffered = append(buffered, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	for _, r := range buffered {
		if _, err := tx.Exec(`INSERT INTO patterns_fts(id, title, summary, tags) VALUES (?, ?, ?, ?)`,
			r.id, r.title, r.summary, r.tags); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
