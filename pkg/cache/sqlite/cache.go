// Package sqlite keeps rendered chart images in a SQLite database so an
// unchanged chart document is not rendered again within its TTL.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/tokenash/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS chart_images (
	doc_hash   TEXT PRIMARY KEY,
	image      BLOB NOT NULL,
	size_bytes INTEGER NOT NULL,
	stored_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chart_images_expires ON chart_images(expires_at);
`

// Cache maps chart document hashes to PNG bytes. Times are stored as unix
// seconds; an entry is live while expires_at is in the future.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New opens (creating if needed) the cache database at dbPath. Images are
// kept for ttl after they are stored.
func New(dbPath string, ttl time.Duration, opts ...Option) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open chart cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate chart cache: %w", err)
	}

	c := &Cache{db: db, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Get returns the image stored under docHash if it has not expired.
func (c *Cache) Get(docHash string) ([]byte, bool) {
	var image []byte
	err := c.db.QueryRow(
		`SELECT image FROM chart_images WHERE doc_hash = ? AND expires_at > ?`,
		docHash, c.now().Unix(),
	).Scan(&image)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return image, true
}

// Put stores image under docHash, replacing any previous entry.
func (c *Cache) Put(docHash string, image []byte) error {
	if len(image) == 0 {
		return errors.New("chart cache: empty image")
	}
	now := c.now()
	_, err := c.db.Exec(
		`INSERT INTO chart_images (doc_hash, image, size_bytes, stored_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(doc_hash) DO UPDATE SET
			image = excluded.image,
			size_bytes = excluded.size_bytes,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at`,
		docHash, image, len(image), now.Unix(), now.Add(c.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("store chart image: %w", err)
	}
	return nil
}

// Stats reports stored entries and bytes plus this process's hit counts.
func (c *Cache) Stats() (models.CacheStats, error) {
	var stats models.CacheStats
	err := c.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		 FROM chart_images`,
		c.now().Unix(),
	).Scan(&stats.Entries, &stats.Bytes, &stats.Expired)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("chart cache stats: %w", err)
	}
	stats.Hits = c.hits.Load()
	stats.Misses = c.misses.Load()
	return stats, nil
}

// Clear deletes entries and returns how many were removed. With expiredOnly
// live entries are kept.
func (c *Cache) Clear(expiredOnly bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if expiredOnly {
		res, err = c.db.Exec(`DELETE FROM chart_images WHERE expires_at <= ?`, c.now().Unix())
	} else {
		res, err = c.db.Exec(`DELETE FROM chart_images`)
	}
	if err != nil {
		return 0, fmt.Errorf("clear chart cache: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
