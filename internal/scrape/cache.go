package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Cache persists the combined scraped-and-summarized text for one link
// set. It holds exactly one slot: a session works with one link set at a
// time, so storing always replaces whatever was there. The fingerprint
// and the text live in a single record written atomically, so a crash can
// never leave a fingerprint pointing at content that was not stored.
type Cache struct {
	path string
}

type cacheRecord struct {
	Fingerprint string `json:"fingerprint"`
	Text        string `json:"text"`
}

func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Lookup returns the cached text iff the stored fingerprint matches.
func (c *Cache) Lookup(fingerprint string) (string, bool, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scrape cache read: %w", err)
	}
	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false, fmt.Errorf("scrape cache decode: %w", err)
	}
	if rec.Fingerprint != fingerprint {
		return "", false, nil
	}
	return rec.Text, true, nil
}

// Store replaces the cache slot with the given fingerprint and text.
func (c *Cache) Store(fingerprint, text string) error {
	data, err := json.Marshal(cacheRecord{Fingerprint: fingerprint, Text: text})
	if err != nil {
		return fmt.Errorf("scrape cache encode: %w", err)
	}
	return atomicWrite(c.path, data)
}

// Clear removes the slot entirely.
func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("scrape cache clear: %w", err)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
