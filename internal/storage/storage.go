// Package storage persists workspace documents, request history and URL
// aliases in a local SQLite database or in plain JSON files.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/model"
)

const (
	// Namespaces of the persisted workspace documents
	NamespaceChains      = "post-woman-chains"
	NamespaceWorkflows   = "post-woman-workflows"
	NamespaceCollections = "post-woman-collections"

	// DefaultHistoryLimit is how many history entries are kept
	DefaultHistoryLimit = 100

	defaultDirName = ".postwoman"

	// Secure file permissions - owner read/write only
	secureFileMode = 0600 // -rw-------
	secureDirMode  = 0700 // drwx------
)

// Storage backend types
const (
	TypeSQLite = "sqlite"
	TypeJSON   = "json"
)

// ErrInvalidNamespace is returned for namespaces that are not plain names
var ErrInvalidNamespace = errors.New("invalid storage namespace")

// Storage is implemented by every persistence backend
type Storage interface {
	// Load decodes the document stored under namespace into v. It reports
	// false when nothing has been saved yet.
	Load(namespace string, v any) (bool, error)
	// Save replaces the document stored under namespace
	Save(namespace string, v any) error

	AddToHistory(entry model.HistoryEntry) error
	// LoadHistory returns entries newest first; limit <= 0 returns all
	LoadHistory(limit int) (*model.History, error)
	// GetHistoryEntry returns nil when id is unknown
	GetHistoryEntry(id string) (*model.HistoryEntry, error)
	ClearHistory() error

	LoadAliases() (*model.Aliases, error)
	CreateAlias(name, url string) error
	DeleteAlias(name string) error
	GetAlias(name string) (string, bool, error)

	Close() error
}

// Options selects and configures a backend
type Options struct {
	Type         string // sqlite (default) or json
	Dir          string // defaults to ~/.postwoman
	HistoryLimit int
	Log          *zap.Logger
}

// Open creates the data directory and opens the configured backend
func Open(opts Options) (Storage, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	dir, err := dataDir(opts.Dir)
	if err != nil {
		return nil, err
	}
	opts.Dir = dir

	switch strings.ToLower(opts.Type) {
	case "", TypeSQLite:
		return NewSQLiteStorage(opts)
	case TypeJSON:
		return NewJSONStorage(opts)
	default:
		return nil, fmt.Errorf("unknown storage type: %q (expected sqlite or json)", opts.Type)
	}
}

func dataDir(dir string) (string, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(homeDir, defaultDirName)
	}
	if err := os.MkdirAll(dir, secureDirMode); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

func validNamespace(ns string) error {
	if ns == "" || ns != filepath.Base(ns) || strings.HasPrefix(ns, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	return nil
}

// ensureSecureFile creates a file with secure permissions if it doesn't exist,
// or verifies/fixes permissions if it does exist. Creating it up front avoids
// a window where the file exists with default permissions.
func ensureSecureFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, secureFileMode)
		if err != nil {
			return fmt.Errorf("failed to create secure file: %w", err)
		}
		return f.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if info.Mode().Perm() != secureFileMode {
		if err := os.Chmod(path, secureFileMode); err != nil {
			return fmt.Errorf("failed to set secure permissions: %w", err)
		}
	}
	return nil
}

func trimHistory(entries []model.HistoryEntry, limit int) []model.HistoryEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
