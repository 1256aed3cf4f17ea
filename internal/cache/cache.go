package cache

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const pragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Cache is the SQLite-backed article store. The table always holds one full
// snapshot; ReplaceAll swaps it atomically and notifies observers.
type Cache struct {
	readDB  *sql.DB
	writeDB *sql.DB

	// writeMu orders commit+broadcast so observers see snapshots in commit order.
	writeMu sync.Mutex
	hub     *hub
}

func Open(dbPath string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath+pragmas)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	c := &Cache{writeDB: writeDB, hub: newHub()}
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}

	// The read handle is opened after the schema exists so it never races
	// table creation.
	readDB, err := sql.Open("sqlite", dbPath+pragmas)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}
	c.readDB = readDB
	return c, nil
}

func (c *Cache) init() error {
	_, err := c.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS articles (
			position   INTEGER PRIMARY KEY,
			headline   TEXT,
			summary    TEXT,
			byline     TEXT,
			image_url  TEXT,
			fetched_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close stops every observer and closes both handles.
func (c *Cache) Close() error {
	c.hub.close()
	var errs []error
	if c.readDB != nil {
		errs = append(errs, c.readDB.Close())
	}
	if c.writeDB != nil {
		errs = append(errs, c.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// ReplaceAll deletes the current snapshot and inserts articles in one
// transaction. Positions are reassigned from the slice order. Observers are
// notified with the committed snapshot only after the commit succeeds.
func (c *Cache) ReplaceAll(articles []Article) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tx, err := c.writeDB.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM articles`); err != nil {
		return fmt.Errorf("clearing articles: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO articles (position, headline, summary, byline, image_url, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, a := range articles {
		fetched := a.FetchedAt
		if fetched.IsZero() {
			fetched = now
		}
		_, err := stmt.Exec(i, nullString(a.Headline), nullString(a.Summary), nullString(a.Byline), nullString(a.ImageURL), fetched)
		if err != nil {
			return fmt.Errorf("inserting article %d: %w", i, err)
		}
	}

	// Read back inside the transaction: this is exactly what commits.
	snapshot, err := queryAll(tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replace: %w", err)
	}

	slog.Debug("cache replaced", "articles", len(snapshot))
	c.hub.publish(snapshot)
	return nil
}

// Clear empties the store; observers receive an empty snapshot.
func (c *Cache) Clear() error {
	return c.ReplaceAll(nil)
}

// GetAll returns the current snapshot ordered by position.
func (c *Cache) GetAll() ([]Article, error) {
	return queryAll(c.readDB)
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryAll(q querier) ([]Article, error) {
	rows, err := q.Query(`
		SELECT position, headline, summary, byline, image_url, fetched_at
		FROM articles ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		var a Article
		var headline, summary, byline, imageURL sql.NullString
		if err := rows.Scan(&a.Position, &headline, &summary, &byline, &imageURL, &a.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		a.Headline = headline.String
		a.Summary = summary.String
		a.Byline = byline.String
		a.ImageURL = imageURL.String
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Stats reports the number of cached articles and the database file size.
func (c *Cache) Stats(dbPath string) (int, int64, error) {
	var count int
	if err := c.readDB.QueryRow(`SELECT COUNT(*) FROM articles`).Scan(&count); err != nil {
		return 0, 0, fmt.Errorf("counting articles: %w", err)
	}

	var size int64
	for _, p := range []string{dbPath, dbPath + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			size += info.Size()
		}
	}
	return count, size, nil
}

func (c *Cache) NeedsRefresh(interval time.Duration) bool {
	value, err := c.getMeta("last_refresh")
	if err != nil {
		return true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return true
	}
	return time.Since(t) > interval
}

func (c *Cache) SetLastRefresh() error {
	return c.setMeta("last_refresh", time.Now().Format(time.RFC3339))
}

// LastRefresh returns when the cache was last filled from the network.
func (c *Cache) LastRefresh() (time.Time, error) {
	value, err := c.getMeta("last_refresh")
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

func (c *Cache) getMeta(key string) (string, error) {
	var value string
	err := c.readDB.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	return value, err
}

func (c *Cache) setMeta(key, value string) error {
	_, err := c.writeDB.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
