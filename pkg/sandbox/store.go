package sandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/denysvitali/ncds-go/internal/models"
	"github.com/denysvitali/ncds-go/pkg/listing"
)

// ListingHeader is the first line of every listing
const ListingHeader = "PATH FILEID"

// indexFile holds the path index in listing format next to the payloads
const indexFile = "index.txt"

// Store keeps the ordered path index in memory and file payloads on disk,
// one file per id under dataDir. The index is written to dataDir after every
// change and reloaded by NewStore.
type Store struct {
	dataDir string
	mu      sync.RWMutex
	entries []models.FileEntry
	nextID  int64
}

// NewStore creates a Store writing payloads below dataDir
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is not specified")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	s := &Store{dataDir: dataDir, nextID: 1}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load index from %s: %w", dataDir, err)
	}
	return s, nil
}

// load restores the index and moves nextID past every id already used,
// including payloads the index no longer references.
func (s *Store) load() error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, indexFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, e := range listing.Parse(string(data)) {
		if e.ID <= 0 {
			continue
		}
		s.entries = append(s.entries, e)
		if e.ID >= s.nextID {
			s.nextID = e.ID + 1
		}
	}

	dirEntries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return err
	}
	for _, de := range dirEntries {
		id, err := strconv.ParseInt(de.Name(), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	return nil
}

// Save stores the payload under a new id. An existing entry for the same
// path is dropped first, matching the gateway's delete-then-insert.
func (s *Store) Save(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(s.dataDir, "upload-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	if err := os.Rename(tmpName, s.payloadPath(id)); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	s.nextID++

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Path == path {
			os.Remove(s.payloadPath(e.ID))
			continue
		}
		kept = append(kept, e)
	}
	s.entries = append(kept, models.FileEntry{Path: path, ID: id})
	if err := s.persist(); err != nil {
		return id, err
	}
	return id, nil
}

// PayloadPath returns the on-disk location of the file with the given id
func (s *Store) PayloadPath(id int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.find(id); !ok {
		return "", false
	}
	return s.payloadPath(id), true
}

// Delete removes the entry with the given id and its payload
func (s *Store) Delete(id int64) (models.FileEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.find(id)
	if !ok {
		return models.FileEntry{}, false, nil
	}
	entry := s.entries[idx]
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	if err := s.persist(); err != nil {
		return entry, true, err
	}
	if err := os.Remove(s.payloadPath(id)); err != nil && !os.IsNotExist(err) {
		return entry, true, err
	}
	return entry, true, nil
}

// Entries returns a copy of the index in listing order
func (s *Store) Entries() []models.FileEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FileEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Listing renders the index in the gateway's text table format
func (s *Store) Listing() string {
	return renderListing(s.Entries())
}

// persist rewrites the index file. Callers hold s.mu.
func (s *Store) persist() error {
	tmp, err := os.CreateTemp(s.dataDir, "index-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(renderListing(s.entries)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(s.dataDir, indexFile)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

func renderListing(entries []models.FileEntry) string {
	var b strings.Builder
	b.WriteString(ListingHeader)
	b.WriteByte('\n')
	for _, e := range entries {
		b.WriteString(e.Path)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(e.ID, 10))
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *Store) find(id int64) (int, bool) {
	for i, e := range s.entries {
		if e.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Store) payloadPath(id int64) string {
	return filepath.Join(s.dataDir, strconv.FormatInt(id, 10))
}
