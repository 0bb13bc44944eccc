package cache

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Learned is the persistent cache tier: translations that cleared the
// learning threshold, keyed by normalized text and language pair. The
// whole store loads into memory at startup; inserts are batched and
// flushed to SQLite periodically rather than per entry.
type Learned struct {
	db        *sql.DB
	path      string
	threshold float64

	mu      sync.Mutex
	entries map[Key]*Entry
	pending []*Entry
}

// NewLearned opens (or creates) the store at dbPath. A store that
// fails to deserialize is reset to empty rather than blocking startup.
// threshold <= 0 selects DefaultLearnThreshold.
func NewLearned(dbPath string, threshold float64) (*Learned, error) {
	if threshold <= 0 {
		threshold = DefaultLearnThreshold
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open learned store: %w", err)
	}

	l := &Learned{
		db:        db,
		path:      dbPath,
		threshold: threshold,
		entries:   make(map[Key]*Entry),
	}

	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate learned store: %w", err)
	}

	if err := l.load(); err != nil {
		// Corrupt rows must not block startup; reset the store.
		log.Printf("cache: learned store corrupt, resetting: %v", err)
		if err := l.reset(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to reset learned store: %w", err)
		}
	}
	return l, nil
}

// migrate creates the schema.
func (l *Learned) migrate() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS learned_translations (
		text TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		translation TEXT NOT NULL,
		confidence REAL NOT NULL,
		inserted_at INTEGER NOT NULL,
		last_access INTEGER NOT NULL,
		PRIMARY KEY (text, source_lang, target_lang)
	)`)
	return err
}

// load reads every row into the in-memory map.
func (l *Learned) load() error {
	rows, err := l.db.Query(`SELECT text, source_lang, target_lang, translation,
		confidence, inserted_at, last_access FROM learned_translations`)
	if err != nil {
		return err
	}
	defer rows.Close()

	entries := make(map[Key]*Entry)
	for rows.Next() {
		var e Entry
		var inserted, accessed int64
		if err := rows.Scan(&e.Key.Text, &e.Key.SourceLang, &e.Key.TargetLang,
			&e.Value, &e.Confidence, &inserted, &accessed); err != nil {
			return err
		}
		e.InsertedAt = time.Unix(inserted, 0)
		e.LastAccess = time.Unix(accessed, 0)
		entries[e.Key] = &e
	}
	if err := rows.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	return nil
}

// reset drops and recreates the table and empties the in-memory map.
func (l *Learned) reset() error {
	if _, err := l.db.Exec(`DROP TABLE IF EXISTS learned_translations`); err != nil {
		return err
	}
	if err := l.migrate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.entries = make(map[Key]*Entry)
	l.pending = nil
	l.mu.Unlock()
	return nil
}

// Threshold returns the learning threshold.
func (l *Learned) Threshold() float64 { return l.threshold }

// Lookup returns the learned entry for key, if any.
func (l *Learned) Lookup(key Key) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if ok {
		e.LastAccess = time.Now()
	}
	return e, ok
}

// Insert learns an entry if its confidence clears the threshold.
// The write is queued for the next batched flush.
func (l *Learned) Insert(e *Entry) {
	if e.Confidence < l.threshold {
		return
	}
	l.mu.Lock()
	l.entries[e.Key] = e
	l.pending = append(l.pending, e)
	l.mu.Unlock()
}

// Len returns the number of learned entries.
func (l *Learned) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Pending returns how many inserts await the next flush.
func (l *Learned) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Flush writes all pending inserts in one transaction. Safe to call at
// any time; a failed flush re-queues the batch.
func (l *Learned) Flush() error {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		l.requeue(batch)
		return fmt.Errorf("failed to begin flush: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO learned_translations
		(text, source_lang, target_lang, translation, confidence, inserted_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		l.requeue(batch)
		return fmt.Errorf("failed to prepare flush: %w", err)
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.Key.Text, e.Key.SourceLang, e.Key.TargetLang,
			e.Value, e.Confidence, e.InsertedAt.Unix(), e.LastAccess.Unix()); err != nil {
			tx.Rollback()
			l.requeue(batch)
			return fmt.Errorf("failed to flush entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		l.requeue(batch)
		return fmt.Errorf("failed to commit flush: %w", err)
	}
	return nil
}

func (l *Learned) requeue(batch []*Entry) {
	l.mu.Lock()
	l.pending = append(batch, l.pending...)
	l.mu.Unlock()
}

// Prune evicts learned entries below minConfidence or older than
// maxAge. This is the store's only eviction path; nothing ages out
// implicitly.
func (l *Learned) Prune(minConfidence float64, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).Unix()
	if _, err := l.db.Exec(`DELETE FROM learned_translations
		WHERE confidence < ? OR inserted_at < ?`, minConfidence, cutoff); err != nil {
		return fmt.Errorf("failed to prune learned store: %w", err)
	}

	l.mu.Lock()
	for key, e := range l.entries {
		if e.Confidence < minConfidence || e.InsertedAt.Unix() < cutoff {
			delete(l.entries, key)
		}
	}
	l.mu.Unlock()
	return nil
}

// Close flushes pending writes and closes the database.
func (l *Learned) Close() error {
	if err := l.Flush(); err != nil {
		log.Printf("cache: flush on close: %v", err)
	}
	return l.db.Close()
}
