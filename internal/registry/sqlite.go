package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/eteran/gallery/internal/media"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	//go:embed migrations
	migrationsFS embed.FS

	ErrNotFound      = errors.New("media entry not found")
	ErrUnknownHandle = errors.New("no pending entry for handle")
	ErrInvalidName   = errors.New("invalid display name")
	ErrInvalidPath   = errors.New("invalid relative path")
)

const (
	databaseName = "media.sqlite"
	pendingDir   = ".pending"
)

// Entry is a published gallery item.
type Entry struct {
	media.Metadata
	ID     string
	Size   int64
	SHA256 string
	Path   string
}

// URI is the reference handed back to callers for the entry.
func (e Entry) URI() string {
	return entryURI(e.Kind, e.ID)
}

// Location converts the entry to the form returned by a save.
func (e Entry) Location() media.Location {
	return media.Location{ID: e.ID, URI: e.URI(), Path: e.Path}
}

// Query selects published entries. Empty fields match everything.
type Query struct {
	Kind       media.Kind
	NamePrefix string
	PathPrefix string
	Limit      int
}

// SQLiteRegistry is a media.Registry that keeps payloads on the local
// filesystem under <root>/<relative path>/<display name> and their metadata
// in a SQLite database at the root.
type SQLiteRegistry struct {
	root string
	db   *sql.DB
}

// initSchema applies all SQL files in the embedded migrations directory in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// OpenSQLite opens (creating if needed) the gallery rooted at root.
func OpenSQLite(ctx context.Context, root string) (*SQLiteRegistry, error) {
	if root == "" {
		return nil, errors.New("root must not be empty")
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve gallery dir: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(root, pendingDir), 0o755); err != nil {
		return nil, fmt.Errorf("create gallery dir: %w", err)
	}

	db, err := sql.Open("sqlite3", sqliteDSN(filepath.Join(root, databaseName)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// The registry serializes its own writes.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return NewSQLiteRegistry(db, root), nil
}

// sqliteDSN builds a file: URI for dbPath. The path is percent-encoded so
// that '?', '#' and '%' in directory names stay part of the file name.
func sqliteDSN(dbPath string) string {
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(dbPath),
		RawQuery: "_busy_timeout=5000&_journal_mode=WAL",
	}
	return u.String()
}

// NewSQLiteRegistry wraps an already initialised database.
func NewSQLiteRegistry(db *sql.DB, root string) *SQLiteRegistry {
	return &SQLiteRegistry{root: root, db: db}
}

// Close closes any resources held by the registry.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// withTransaction runs a function within a database transaction.
func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (r *SQLiteRegistry) pendingPath(id string) string {
	return filepath.Join(r.root, pendingDir, id)
}

func validateMetadata(meta media.Metadata) error {
	name := meta.DisplayName
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	rel := filepath.FromSlash(meta.RelativePath)
	if rel != "" && !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, meta.RelativePath)
	}
	if rel == pendingDir || strings.HasPrefix(rel, pendingDir+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, meta.RelativePath)
	}
	return nil
}

func (r *SQLiteRegistry) Allocate(ctx context.Context, meta media.Metadata) (media.Handle, error) {
	if err := validateMetadata(meta); err != nil {
		return media.Handle{}, err
	}

	id := uuid.NewString()
	relPath := path.Clean("/" + meta.RelativePath)[1:]

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO media(id, kind, display_name, mime_type, relative_path, date_added, duration_ms, pending)
		 VALUES(?, ?, ?, ?, ?, ?, ?, 1)`,
		id, string(meta.Kind), meta.DisplayName, meta.MIMEType, relPath,
		meta.DateAdded.Unix(), meta.Duration.Milliseconds(),
	)
	if err != nil {
		return media.Handle{}, fmt.Errorf("insert media row: %w", err)
	}

	return media.Handle{ID: id, Key: path.Join(relPath, meta.DisplayName)}, nil
}

func (r *SQLiteRegistry) isPending(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media WHERE id = ? AND pending = 1`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SQLiteRegistry) Open(ctx context.Context, h media.Handle) (io.WriteCloser, error) {
	ok, err := r.isPending(ctx, h.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup pending entry: %w", err)
	}
	if !ok {
		return nil, ErrUnknownHandle
	}

	f, err := os.OpenFile(r.pendingPath(h.ID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return f, nil
}

func (r *SQLiteRegistry) Publish(ctx context.Context, h media.Handle) (media.Location, error) {
	var (
		entry Entry
		moved bool
	)

	err := withTransaction(ctx, r.db, func(tx *sql.Tx) error {
		var (
			kind       string
			dateAdded  int64
			durationMS int64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT kind, display_name, mime_type, relative_path, date_added, duration_ms
			 FROM media WHERE id = ? AND pending = 1`,
			h.ID,
		).Scan(&kind, &entry.DisplayName, &entry.MIMEType, &entry.RelativePath, &dateAdded, &durationMS)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownHandle
		}
		if err != nil {
			return fmt.Errorf("lookup pending entry: %w", err)
		}

		entry.ID = h.ID
		entry.Kind = media.Kind(kind)
		entry.DateAdded = time.Unix(dateAdded, 0).UTC()
		entry.Duration = time.Duration(durationMS) * time.Millisecond

		staged := r.pendingPath(h.ID)
		entry.SHA256, entry.Size, err = hashFile(staged)
		if err != nil {
			return fmt.Errorf("hash staged payload: %w", err)
		}

		entry.Path = filepath.Join(r.root, filepath.FromSlash(entry.RelativePath), entry.DisplayName)

		if _, err := tx.ExecContext(ctx,
			`UPDATE media SET pending = 0, size = ?, sha256 = ?, data = ? WHERE id = ?`,
			entry.Size, entry.SHA256, entry.Path, h.ID,
		); err != nil {
			return fmt.Errorf("mark entry published: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(entry.Path), 0o755); err != nil {
			return fmt.Errorf("create collection dir: %w", err)
		}

		// MoveFile refuses to replace a file that already exists in the
		// gallery, even one created after the row was reserved.
		if err := MoveFile(staged, entry.Path); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("destination already exists: %s: %w", entry.Path, err)
			}
			return fmt.Errorf("move payload into place: %w", err)
		}
		moved = true
		return nil
	})
	if err != nil {
		if moved {
			_ = os.Remove(entry.Path)
		}
		return media.Location{}, err
	}

	return entry.Location(), nil
}

func (r *SQLiteRegistry) Discard(ctx context.Context, h media.Handle) error {
	if err := os.Remove(r.pendingPath(h.ID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staging file: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE id = ? AND pending = 1`, h.ID); err != nil {
		return fmt.Errorf("delete pending row: %w", err)
	}
	return nil
}

const entryColumns = `id, kind, display_name, mime_type, relative_path, date_added, duration_ms, size, sha256, data`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e          Entry
		kind       string
		dateAdded  int64
		durationMS int64
		sha        sql.NullString
		data       sql.NullString
	)
	if err := row.Scan(&e.ID, &kind, &e.DisplayName, &e.MIMEType, &e.RelativePath, &dateAdded, &durationMS, &e.Size, &sha, &data); err != nil {
		return Entry{}, err
	}
	e.Kind = media.Kind(kind)
	e.DateAdded = time.Unix(dateAdded, 0).UTC()
	e.Duration = time.Duration(durationMS) * time.Millisecond
	e.SHA256 = sha.String
	e.Path = data.String
	return e, nil
}

// Get returns the published entry with the given id.
func (r *SQLiteRegistry) Get(ctx context.Context, id string) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM media WHERE id = ? AND pending = 0`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("lookup entry: %w", err)
	}
	return e, nil
}

// escapeLike escapes the LIKE wildcards in s so it matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// List returns published entries matching q, newest first. Entries whose
// payload file has gone missing are skipped.
func (r *SQLiteRegistry) List(ctx context.Context, q Query) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM media WHERE pending = 0`
	var args []any

	if q.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(q.Kind))
	}
	if q.NamePrefix != "" {
		query += ` AND display_name LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(q.NamePrefix)+"%")
	}
	if q.PathPrefix != "" {
		query += ` AND relative_path LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(q.PathPrefix)+"%")
	}
	query += ` ORDER BY date_added DESC, display_name DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if _, err := os.Stat(e.Path); err != nil {
			slog.Debug("Skipping entry with missing payload", "id", e.ID, "path", e.Path)
			continue
		}

		entries = append(entries, e)
		if q.Limit > 0 && len(entries) >= q.Limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// OpenEntry opens the payload of a published entry for reading.
func (r *SQLiteRegistry) OpenEntry(ctx context.Context, id string) (io.ReadCloser, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return os.Open(e.Path)
}

func entryURI(kind media.Kind, id string) string {
	return fmt.Sprintf("media://%s/%s", kind, id)
}
