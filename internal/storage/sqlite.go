package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/model"

	_ "modernc.org/sqlite"
)

const dbFile = "postwoman.db"

// parseJSONHeaders parses a headers column, returning an empty map on error
func parseJSONHeaders(jsonStr string) (map[string]string, error) {
	if jsonStr == "" {
		return make(map[string]string), nil
	}

	var headers map[string]string
	if err := json.Unmarshal([]byte(jsonStr), &headers); err != nil {
		return make(map[string]string), fmt.Errorf("failed to parse headers JSON: %w", err)
	}
	if headers == nil {
		headers = make(map[string]string)
	}
	return headers, nil
}

// SQLiteStorage handles SQLite database persistence
type SQLiteStorage struct {
	db           *sql.DB
	dataDir      string
	historyLimit int
	log          *zap.Logger
}

// NewSQLiteStorage opens (or creates) the database in opts.Dir
func NewSQLiteStorage(opts Options) (*SQLiteStorage, error) {
	dir, err := dataDir(opts.Dir)
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	dbPath := filepath.Join(dir, dbFile)
	if err := ensureSecureFile(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db, dataDir: dir, historyLimit: opts.HistoryLimit, log: log}
	if s.historyLimit <= 0 {
		s.historyLimit = DefaultHistoryLimit
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	// migration errors shouldn't prevent startup
	if err := s.migrateFromJSON(); err != nil {
		log.Warn("JSON migration failed", zap.String("dir", dir), zap.Error(err))
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	-- Workspace documents (chains, workflows, collections), one row per namespace
	CREATE TABLE IF NOT EXISTS documents (
		namespace TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- History table (stores request + embedded response)
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		headers TEXT DEFAULT '{}',
		body TEXT DEFAULT '',
		response_status INTEGER,
		response_status_text TEXT,
		response_headers TEXT,
		response_body TEXT,
		response_time_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp DESC);

	-- Aliases table
	CREATE TABLE IF NOT EXISTS aliases (
		name TEXT PRIMARY KEY,
		url TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Documents
// =============================================================================

// Load decodes the namespace document into v
func (s *SQLiteStorage) Load(namespace string, v any) (bool, error) {
	if err := validNamespace(namespace); err != nil {
		return false, err
	}

	var data string
	err := s.db.QueryRow("SELECT data FROM documents WHERE namespace = ?", namespace).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", namespace, err)
	}
	return true, nil
}

// Save replaces the namespace document with v
func (s *SQLiteStorage) Save(namespace string, v any) error {
	if err := validNamespace(namespace); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO documents (namespace, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		namespace, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", namespace, err)
	}
	s.log.Debug("Saved document", zap.String("namespace", namespace), zap.Int("bytes", len(data)))
	return nil
}

// =============================================================================
// History Operations
// =============================================================================

const historyColumns = `id, timestamp, method, url, headers, body,
	response_status, response_status_text, response_headers,
	response_body, response_time_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryEntry(row rowScanner) (model.HistoryEntry, error) {
	var entry model.HistoryEntry
	var headersJSON string
	var respStatus, respTime sql.NullInt64
	var respStatusText, respHeaders, respBody sql.NullString

	err := row.Scan(
		&entry.ID, &entry.Timestamp, &entry.Method, &entry.URL,
		&headersJSON, &entry.Body,
		&respStatus, &respStatusText, &respHeaders,
		&respBody, &respTime,
	)
	if err != nil {
		return entry, err
	}

	// a corrupt headers column only loses the headers
	entry.Headers, _ = parseJSONHeaders(headersJSON)

	if respStatus.Valid {
		entry.Response = &model.Response{
			Status:     int(respStatus.Int64),
			StatusText: respStatusText.String,
			Body:       respBody.String,
			Time:       respTime.Int64,
		}
		entry.Response.Headers, _ = parseJSONHeaders(respHeaders.String)
	}
	return entry, nil
}

// LoadHistory loads the newest history entries
func (s *SQLiteStorage) LoadHistory(limit int) (*model.History, error) {
	query := "SELECT " + historyColumns + " FROM history ORDER BY timestamp DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := &model.History{Entries: []model.HistoryEntry{}}
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		history.Entries = append(history.Entries, entry)
	}
	return history, rows.Err()
}

// AddToHistory inserts an entry and drops the oldest beyond the limit
func (s *SQLiteStorage) AddToHistory(entry model.HistoryEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertHistoryEntry(tx, entry); err != nil {
		return err
	}

	_, err = tx.Exec(`
		DELETE FROM history
		WHERE id NOT IN (
			SELECT id FROM history ORDER BY timestamp DESC LIMIT ?
		)`, s.historyLimit)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func insertHistoryEntry(tx *sql.Tx, entry model.HistoryEntry) error {
	headersJSON, _ := json.Marshal(entry.Headers)

	var respStatus, respTime sql.NullInt64
	var respStatusText, respHeaders, respBody sql.NullString

	if entry.Response != nil {
		respStatus = sql.NullInt64{Int64: int64(entry.Response.Status), Valid: true}
		respStatusText = sql.NullString{String: entry.Response.StatusText, Valid: true}
		respHeadersJSON, _ := json.Marshal(entry.Response.Headers)
		respHeaders = sql.NullString{String: string(respHeadersJSON), Valid: true}
		respBody = sql.NullString{String: entry.Response.Body, Valid: true}
		respTime = sql.NullInt64{Int64: entry.Response.Time, Valid: true}
	}

	_, err := tx.Exec(`
		INSERT OR REPLACE INTO history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, string(entry.Method), entry.URL, string(headersJSON), entry.Body,
		respStatus, respStatusText, respHeaders, respBody, respTime,
	)
	return err
}

// ClearHistory clears all history
func (s *SQLiteStorage) ClearHistory() error {
	_, err := s.db.Exec("DELETE FROM history")
	return err
}

// GetHistoryEntry gets a specific entry by ID
func (s *SQLiteStorage) GetHistoryEntry(id string) (*model.HistoryEntry, error) {
	row := s.db.QueryRow("SELECT "+historyColumns+" FROM history WHERE id = ?", id)
	entry, err := scanHistoryEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// =============================================================================
// Alias Operations
// =============================================================================

// LoadAliases loads all aliases from the database
func (s *SQLiteStorage) LoadAliases() (*model.Aliases, error) {
	aliases := &model.Aliases{Aliases: make(map[string]string)}

	rows, err := s.db.Query("SELECT name, url FROM aliases")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, url string
		if err := rows.Scan(&name, &url); err != nil {
			return nil, err
		}
		aliases.Aliases[name] = url
	}
	return aliases, rows.Err()
}

// CreateAlias creates or replaces an alias
func (s *SQLiteStorage) CreateAlias(name, url string) error {
	_, err := s.db.Exec(`
		INSERT INTO aliases (name, url) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET url = excluded.url`,
		name, url)
	return err
}

// DeleteAlias deletes an alias
func (s *SQLiteStorage) DeleteAlias(name string) error {
	_, err := s.db.Exec("DELETE FROM aliases WHERE name = ?", name)
	return err
}

// GetAlias gets an alias URL by name
func (s *SQLiteStorage) GetAlias(name string) (string, bool, error) {
	var url string
	err := s.db.QueryRow("SELECT url FROM aliases WHERE name = ?", name).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// =============================================================================
// Migration from JSON
// =============================================================================

// migrateFromJSON imports files written by JSONStorage into an empty
// database and renames them to *.migrated
func (s *SQLiteStorage) migrateFromJSON() error {
	for _, table := range []string{"documents", "history", "aliases"} {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
	}

	files, err := filepath.Glob(filepath.Join(s.dataDir, "*.json"))
	if err != nil {
		return err
	}

	var errs []error
	for _, path := range files {
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		switch name {
		case historyFile:
			err = s.migrateHistory(data)
		case aliasesFile:
			err = s.migrateAliases(data)
		default:
			err = s.migrateDocument(strings.TrimSuffix(name, ".json"), data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := os.Rename(path, path+".migrated"); err != nil {
			errs = append(errs, err)
			continue
		}
		s.log.Info("Migrated JSON file", zap.String("file", name))
	}
	return errors.Join(errs...)
}

func (s *SQLiteStorage) migrateDocument(namespace string, data []byte) error {
	if !json.Valid(data) {
		return errors.New("not valid JSON")
	}
	var raw json.RawMessage = data
	return s.Save(namespace, raw)
}

func (s *SQLiteStorage) migrateHistory(data []byte) error {
	var history model.History
	if err := json.Unmarshal(data, &history); err != nil {
		return err
	}
	// oldest first so the newest keep their place under the limit
	for i := len(history.Entries) - 1; i >= 0; i-- {
		if err := s.AddToHistory(history.Entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) migrateAliases(data []byte) error {
	var aliases model.Aliases
	if err := json.Unmarshal(data, &aliases); err != nil {
		return err
	}
	for name, url := range aliases.Aliases {
		if err := s.CreateAlias(name, url); err != nil {
			return err
		}
	}
	return nil
}
