package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/model"
)

const (
	historyFile = "history.json"
	aliasesFile = "aliases.json"
)

// JSONStorage keeps one JSON file per namespace plus history and aliases
// files in the data directory
type JSONStorage struct {
	dataDir      string
	historyLimit int
	log          *zap.Logger
}

// NewJSONStorage creates a JSON storage instance rooted at opts.Dir
func NewJSONStorage(opts Options) (*JSONStorage, error) {
	dir, err := dataDir(opts.Dir)
	if err != nil {
		return nil, err
	}
	s := &JSONStorage{dataDir: dir, historyLimit: opts.HistoryLimit, log: opts.Log}
	if s.historyLimit <= 0 {
		s.historyLimit = DefaultHistoryLimit
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s, nil
}

// Close is a no-op for file storage
func (s *JSONStorage) Close() error {
	return nil
}

func (s *JSONStorage) path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// readFile decodes a file into v, reporting false when it does not exist
func (s *JSONStorage) readFile(name string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return true, nil
}

func (s *JSONStorage) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(name), data, secureFileMode)
}

// Load reads the namespace document into v
func (s *JSONStorage) Load(namespace string, v any) (bool, error) {
	if err := validNamespace(namespace); err != nil {
		return false, err
	}
	return s.readFile(namespace+".json", v)
}

// Save writes v as the namespace document
func (s *JSONStorage) Save(namespace string, v any) error {
	if err := validNamespace(namespace); err != nil {
		return err
	}
	if err := s.writeFile(namespace+".json", v); err != nil {
		return fmt.Errorf("failed to save %s: %w", namespace, err)
	}
	s.log.Debug("Saved document", zap.String("namespace", namespace))
	return nil
}

// LoadHistory loads the request history from disk
func (s *JSONStorage) LoadHistory(limit int) (*model.History, error) {
	history := &model.History{Entries: []model.HistoryEntry{}}
	if _, err := s.readFile(historyFile, history); err != nil {
		return nil, err
	}
	if history.Entries == nil {
		history.Entries = []model.HistoryEntry{}
	}
	history.Entries = trimHistory(history.Entries, limit)
	return history, nil
}

// AddToHistory prepends an entry and drops the oldest beyond the limit
func (s *JSONStorage) AddToHistory(entry model.HistoryEntry) error {
	history, err := s.LoadHistory(0)
	if err != nil {
		return err
	}
	history.Entries = append([]model.HistoryEntry{entry}, history.Entries...)
	history.Entries = trimHistory(history.Entries, s.historyLimit)
	return s.writeFile(historyFile, history)
}

// ClearHistory clears all history
func (s *JSONStorage) ClearHistory() error {
	return s.writeFile(historyFile, &model.History{Entries: []model.HistoryEntry{}})
}

// GetHistoryEntry gets a specific entry by ID
func (s *JSONStorage) GetHistoryEntry(id string) (*model.HistoryEntry, error) {
	history, err := s.LoadHistory(0)
	if err != nil {
		return nil, err
	}
	for i := range history.Entries {
		if history.Entries[i].ID == id {
			return &history.Entries[i], nil
		}
	}
	return nil, nil
}

// LoadAliases loads all aliases from disk
func (s *JSONStorage) LoadAliases() (*model.Aliases, error) {
	aliases := &model.Aliases{Aliases: make(map[string]string)}
	if _, err := s.readFile(aliasesFile, aliases); err != nil {
		return nil, err
	}
	if aliases.Aliases == nil {
		aliases.Aliases = make(map[string]string)
	}
	return aliases, nil
}

// CreateAlias creates or replaces an alias
func (s *JSONStorage) CreateAlias(name, url string) error {
	aliases, err := s.LoadAliases()
	if err != nil {
		return err
	}
	aliases.Aliases[name] = url
	return s.writeFile(aliasesFile, aliases)
}

// DeleteAlias deletes an alias
func (s *JSONStorage) DeleteAlias(name string) error {
	aliases, err := s.LoadAliases()
	if err != nil {
		return err
	}
	delete(aliases.Aliases, name)
	return s.writeFile(aliasesFile, aliases)
}

// GetAlias gets an alias URL by name
func (s *JSONStorage) GetAlias(name string) (string, bool, error) {
	aliases, err := s.LoadAliases()
	if err != nil {
		return "", false, err
	}
	url, exists := aliases.Aliases[name]
	return url, exists, nil
}
