package index

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Bump when the payload layout changes; stale schemas are ignored on load.
const cacheSchemaVersion uint16 = 1

// cachePayload is the on-disk warm-start snapshot of one project's index.
type cachePayload struct {
	Schema  uint16
	Root    string
	Files   []string
	Symbols map[string][]Symbol
}

// Cache persists index snapshots per project root so symbol queries have
// answers before the first full scan of a session finishes. It is a hint,
// not a source of truth: the next Rescan replaces whatever was loaded.
type Cache struct {
	dir string
}

// OpenCache returns a cache rooted at the standard user cache location.
func OpenCache(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(root string) string {
	sum := sha256.Sum256([]byte(root))
	return filepath.Join(c.dir, "index", hex.EncodeToString(sum[:16])+".mp")
}

// Save writes the store's current contents for root, replacing the previous
// snapshot atomically.
func (c *Cache) Save(root string, s *Store) error {
	if c == nil || root == "" {
		return nil
	}
	s.mu.RLock()
	payload := cachePayload{
		Schema:  cacheSchemaVersion,
		Root:    root,
		Files:   make([]string, 0, len(s.files)),
		Symbols: s.symbols,
	}
	for path := range s.files {
		payload.Files = append(payload.Files, path)
	}
	data, err := msgpack.Marshal(&payload)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	target := c.pathFor(root)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "tmp-*")
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
	return os.Rename(tmp.Name(), target)
}

// Load replaces the store's contents with the cached snapshot for root, if a
// compatible one exists.
func (c *Cache) Load(root string, s *Store) bool {
	if c == nil || root == "" {
		return false
	}
	data, err := os.ReadFile(c.pathFor(root))
	if err != nil {
		return false
	}
	var payload cachePayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return false
	}
	if payload.Schema != cacheSchemaVersion || payload.Root != root {
		return false
	}
	symbols := payload.Symbols
	if symbols == nil {
		symbols = make(map[string][]Symbol)
	}
	files := make(map[string]struct{}, len(payload.Files))
	for _, path := range payload.Files {
		files[path] = struct{}{}
	}
	s.replace(symbols, files)
	return true
}
