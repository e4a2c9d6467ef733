package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"payment-reconciliation/internal/domain"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// SQLiteStore implements usecase.DocumentStore on a single SQLite table of
// JSON bodies. Filters are pushed down with json_extract and re-checked in
// Go so both stores agree on equality.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (and creates if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes serialised.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(documentsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindOne(ctx context.Context, collection string, filter domain.Filter) (domain.Document, error) {
	docs, err := s.query(ctx, s.db, collection, filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: %w", collection, domain.ErrNotFound)
	}
	return docs[0], nil
}

func (s *SQLiteStore) Find(ctx context.Context, collection string, filter domain.Filter) ([]domain.Document, error) {
	return s.query(ctx, s.db, collection, filter)
}

func (s *SQLiteStore) UpdateOne(ctx context.Context, collection string, filter domain.Filter, update domain.Update) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		docs, err := s.query(ctx, tx, collection, filter)
		if err != nil || len(docs) == 0 {
			return err
		}
		doc := docs[0]
		update.Apply(doc)
		doc[FieldUpdatedAt] = s.now().UTC()
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, doc.ID(), err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE documents SET body = ? WHERE collection = ? AND id = ?`, string(body), collection, doc.ID())
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, doc.ID(), err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func (s *SQLiteStore) InsertOne(ctx context.Context, collection string, doc domain.Document) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.insert(ctx, tx, collection, doc)
	})
}

func (s *SQLiteStore) InsertMany(ctx context.Context, collection string, docs []domain.Document) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, doc := range docs {
			if err := s.insert(ctx, tx, collection, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteOne(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	return s.delete(ctx, collection, filter, 1)
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	return s.delete(ctx, collection, filter, -1)
}

func (s *SQLiteStore) CountDocuments(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	docs, err := s.query(ctx, s.db, collection, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (s *SQLiteStore) delete(ctx context.Context, collection string, filter domain.Filter, limit int) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		docs, err := s.query(ctx, tx, collection, filter)
		if err != nil {
			return err
		}
		if limit > 0 && len(docs) > limit {
			docs = docs[:limit]
		}
		for _, doc := range docs {
			res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, doc.ID())
			if err != nil {
				return fmt.Errorf("delete %s/%s: %w", collection, doc.ID(), err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			n += affected
		}
		return nil
	})
	return n, err
}

func (s *SQLiteStore) insert(ctx context.Context, tx *sql.Tx, collection string, doc domain.Document) error {
	stored := doc.Clone()
	if stored == nil {
		stored = domain.Document{}
	}
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
	}
	stored[domain.IDField] = id
	if _, ok := stored[FieldCreatedAt]; !ok {
		stored[FieldCreatedAt] = s.now().UTC()
	}
	body, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`, collection, id, string(body))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) query(ctx context.Context, q queryer, collection string, filter domain.Filter) ([]domain.Document, error) {
	where, args := filterSQL(filter)
	stmt := `SELECT body FROM documents WHERE collection = ?`
	if where != "" {
		stmt += " AND " + where
	}
	stmt += " ORDER BY id"

	rows, err := q.QueryContext(ctx, stmt, append([]any{collection}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		var doc domain.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		if filter.Matches(doc) {
			out = append(out, doc)
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// filterSQL renders the pushdown part of a filter. String values compare
// against the text form of the stored value, so a numeric field still
// matches its string rendering; other values are left to the Go check.
func filterSQL(f domain.Filter) (string, []any) {
	var clauses []string
	var args []any

	paths := make([]string, 0, len(f.Eq))
	for p := range f.Eq {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		v, ok := f.Eq[p].(string)
		if !ok {
			continue
		}
		clauses = append(clauses, "CAST(json_extract(body, ?) AS TEXT) = ?")
		args = append(args, JSONPath(p), v)
	}

	if len(f.Or) > 0 {
		branches := make([]string, 0, len(f.Or))
		var branchArgs []any
		for _, branch := range f.Or {
			w, a := filterSQL(branch)
			if w == "" {
				// An unconstrained branch matches everything.
				branches = nil
				break
			}
			branches = append(branches, "("+w+")")
			branchArgs = append(branchArgs, a...)
		}
		if branches != nil {
			clauses = append(clauses, "("+strings.Join(branches, " OR ")+")")
			args = append(args, branchArgs...)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return strings.Join(clauses, " AND "), args
}

// JSONPath converts a dot-separated field path into an SQLite JSON path,
// quoting every key so names with spaces survive.
func JSONPath(path string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, key := range strings.Split(path, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(key, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}
