// Package offline is the local durable cache: the last loaded task
// collection and the queue of mutations recorded while the store was
// unreachable. Both are JSON documents in a SQLite key/value table under
// fixed keys.
package offline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrisonrobin/taskflow/pkg/model"
)

const (
	TasksKey   = "offline_tasks"
	ActionsKey = "offline_actions"
)

type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) get(key string, v any) (bool, error) {
	var raw string
	err := c.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(raw))
	return err
}

func (c *Cache) del(key string) error {
	_, err := c.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// SaveTasks replaces the cached collection.
func (c *Cache) SaveTasks(tasks []model.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tasks == nil {
		tasks = []model.Task{}
	}
	return c.put(TasksKey, tasks)
}

// Tasks returns the cached collection in the order it was saved, or an
// empty slice if nothing was cached.
func (c *Cache) Tasks() ([]model.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks := []model.Task{}
	if _, err := c.get(TasksKey, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Enqueue appends action to the queue.
func (c *Cache) Enqueue(action model.OfflineAction) error {
	if err := action.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var actions []model.OfflineAction
	if _, err := c.get(ActionsKey, &actions); err != nil {
		return err
	}
	return c.put(ActionsKey, append(actions, action))
}

// Actions returns the queued actions oldest first.
func (c *Cache) Actions() ([]model.OfflineAction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var actions []model.OfflineAction
	if _, err := c.get(ActionsKey, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

func (c *Cache) RemoveAction(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var actions []model.OfflineAction
	if _, err := c.get(ActionsKey, &actions); err != nil {
		return err
	}
	kept := actions[:0]
	for _, a := range actions {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	return c.put(ActionsKey, kept)
}

// ClearActions empties the queue.
func (c *Cache) ClearActions() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.del(ActionsKey)
}
