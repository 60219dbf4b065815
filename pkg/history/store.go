package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pario-ai/tokenash/pkg/logger"
	"github.com/pario-ai/tokenash/pkg/models"
)

// Store loads and saves a whole ledger.
type Store interface {
	// Load returns the persisted ledger. Missing or unreadable state yields
	// an empty History; Load never fails.
	Load(ctx context.Context) *History
	// Save replaces the persisted ledger with h.
	Save(ctx context.Context, h *History) error
	// Close releases resources.
	Close() error
}

// Storage drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open returns the Store for driver at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", DriverJSON:
		return NewJSONStore(path), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// fileRecord is the on-disk shape of a record. Total is written for readers
// of the file and ignored on load.
type fileRecord struct {
	Day       string           `json:"date"`
	Providers map[string]int64 `json:"providers"`
	Total     int64            `json:"total"`
}

type fileLedger struct {
	Records []fileRecord `json:"records"`
}

// JSONStore persists the ledger as a single JSON document.
type JSONStore struct {
	path string
}

// NewJSONStore returns a JSONStore writing to path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the ledger file path.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the ledger file. A missing file is an empty ledger; a malformed
// one is logged and also treated as empty.
func (s *JSONStore) Load(ctx context.Context) *History {
	log := logger.FromContext(ctx).With(zap.String("path", s.path))

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("no usage ledger yet, starting empty")
		return New()
	}
	if err != nil {
		log.Warn("read usage ledger failed, starting empty", zap.Error(err))
		return New()
	}

	h, err := decodeLedger(data)
	if err != nil {
		log.Warn("usage ledger is corrupt, starting empty", zap.Error(err))
		return New()
	}
	return h
}

func decodeLedger(data []byte) (*History, error) {
	var f fileLedger
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	h := New()
	for _, fr := range f.Records {
		if _, err := models.ParseDay(fr.Day); err != nil {
			return nil, err
		}
		rec := models.NewUsageRecord(fr.Day)
		for p, n := range fr.Providers {
			if n < 0 {
				return nil, fmt.Errorf("negative count %d for %s on %s", n, p, fr.Day)
			}
			rec.Providers[p] = n
		}
		h.Merge(rec)
	}
	return h, nil
}

// Save writes the ledger atomically via a temp file and rename.
func (s *JSONStore) Save(_ context.Context, h *History) error {
	f := fileLedger{Records: make([]fileRecord, 0, h.Len())}
	for _, r := range h.Records() {
		providers := r.Providers
		if providers == nil {
			providers = map[string]int64{}
		}
		f.Records = append(f.Records, fileRecord{Day: r.Day, Providers: providers, Total: r.Total()})
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".usage-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *JSONStore) Close() error {
	return nil
}
