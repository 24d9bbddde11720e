// Package storage persists local workspace state for the charting client.
// It uses BoltDB as the underlying storage engine: one bucket holds the
// chart settings record, another tracks recently opened symbols.
package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"charty-feed/internal/common"

	"go.etcd.io/bbolt"
)

const (
	settingsBucket = "settings" // Bucket name for the workspace settings record
	symbolsBucket  = "symbols"  // Bucket name for last-opened times per symbol

	workspaceKey = "workspace"
	dbFileName   = "charty-settings.db"
)

// WorkspaceSettings is the persisted chart configuration.
type WorkspaceSettings struct {
	Symbol          string `json:"symbol"`
	Timeframe       string `json:"timeframe"`
	Theme           string `json:"theme"`
	BarSpacing      int    `json:"barSpacing"`
	UpColor         string `json:"upColor"`
	DownColor       string `json:"downColor"`
	BorderUpColor   string `json:"borderUpColor"`
	BorderDownColor string `json:"borderDownColor"`
	WickUpColor     string `json:"wickUpColor"`
	WickDownColor   string `json:"wickDownColor"`
}

// DefaultSettings returns the settings used when nothing has been saved.
func DefaultSettings() WorkspaceSettings {
	return WorkspaceSettings{
		Symbol:          common.DefaultSymbol,
		Timeframe:       common.DefaultTimeframe,
		Theme:           "dark",
		BarSpacing:      18,
		UpColor:         "rgba(34, 197, 94, 0.3)",
		DownColor:       "rgba(239, 68, 68, 0.3)",
		BorderUpColor:   "#22c55e",
		BorderDownColor: "#ef4444",
		WickUpColor:     "#22c55e",
		WickDownColor:   "#ef4444",
	}
}

// Store provides persistent storage for workspace state using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the settings database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(settingsBucket)); err != nil {
			return fmt.Errorf("create settings bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(symbolsBucket)); err != nil {
			return fmt.Errorf("create symbols bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// LoadSettings returns the saved settings, or the defaults when none exist.
// Fields missing from an older record keep their default values.
func (s *Store) LoadSettings() (WorkspaceSettings, error) {
	settings := DefaultSettings()
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(settingsBucket)).Get([]byte(workspaceKey))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("unmarshal settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return DefaultSettings(), err
	}
	return settings, nil
}

// HasSettings reports whether a settings record has been saved.
func (s *Store) HasSettings() (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(settingsBucket)).Get([]byte(workspaceKey)) != nil
		return nil
	})
	return found, err
}

// SaveSettings replaces the stored settings.
func (s *Store) SaveSettings(settings WorkspaceSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).Put([]byte(workspaceKey), data)
	})
}

// UpdateSettings applies fn to the current settings and saves the result atomically.
func (s *Store) UpdateSettings(fn func(*WorkspaceSettings)) (WorkspaceSettings, error) {
	var out WorkspaceSettings
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(settingsBucket))
		out = DefaultSettings()
		if data := b.Get([]byte(workspaceKey)); data != nil {
			if err := json.Unmarshal(data, &out); err != nil {
				return fmt.Errorf("unmarshal settings: %w", err)
			}
		}
		fn(&out)
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		return b.Put([]byte(workspaceKey), data)
	})
	return out, err
}

// ResetSettings removes the stored settings so the defaults apply again.
func (s *Store) ResetSettings() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).Delete([]byte(workspaceKey))
	})
}

// TouchSymbol records that symbol was opened at ts.
func (s *Store) TouchSymbol(symbol string, ts time.Time) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts.UnixNano()))
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(symbolsBucket)).Put([]byte(symbol), buf[:])
	})
}

// RecentSymbols returns up to limit symbols, most recently opened first.
// A limit of zero or less returns all of them.
func (s *Store) RecentSymbols(limit int) ([]string, error) {
	type entry struct {
		symbol string
		ts     uint64
	}
	var entries []entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(symbolsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) != 8 {
				continue
			}
			entries = append(entries, entry{symbol: string(bytes.Clone(k)), ts: binary.BigEndian.Uint64(v)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ts > entries[j].ts })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.symbol)
	}
	return out, nil
}
