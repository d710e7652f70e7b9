package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// maxDataFileSize bounds the data file read into memory (64 MiB).
const maxDataFileSize = 64 << 20

// ErrDataFileTooLarge is returned when the data file exceeds maxDataFileSize.
var ErrDataFileTooLarge = errors.New("parcel data file exceeds maximum allowed size (64 MiB)")

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	NextID  int64           `json:"nextId"`
	Parcels []parcel.Record `json:"parcels"`
}

// fileState is an immutable snapshot. Writers build a new one and publish it.
type fileState struct {
	nextID  int64
	parcels []parcel.Record
	version string
}

// FileStore keeps the whole parcel collection in one JSON file.
//
// Writers are serialized by writeMu; each one copies the current snapshot,
// applies its change, writes the file atomically and then publishes the new
// snapshot. Readers never block: they use whichever snapshot was last
// published.
type FileStore struct {
	path    string
	logger  *slog.Logger
	writeMu sync.Mutex
	state   atomic.Pointer[fileState]
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithFileLogger sets the logger used for reloads.
func WithFileLogger(logger *slog.Logger) FileStoreOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileStore opens the data file at path. A missing file is an empty store;
// it is created by the first mutation. Both the native layout and the legacy
// flat array of parcels are accepted.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	if err := validateDataPath(path); err != nil {
		return nil, err
	}
	s := &FileStore{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	state, err := s.readFile()
	if err != nil {
		return nil, err
	}
	s.state.Store(state)
	return s, nil
}

// validateDataPath rejects paths with ".." components.
func validateDataPath(path string) error {
	if path == "" {
		return errors.New("parcel data file path is required")
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return fmt.Errorf("parcel data file path %q contains path traversal", path)
		}
	}
	return nil
}

// Path returns the data file managed by this store.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) readFile() (*fileState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileState{nextID: 1}, nil
		}
		return nil, &parcel.StoreError{Op: "load", Err: err}
	}
	if len(data) > maxDataFileSize {
		return nil, &parcel.StoreError{Op: "load", Err: ErrDataFileTooLarge}
	}
	state, err := decodeDataFile(data)
	if err != nil {
		return nil, &parcel.StoreError{Op: "load", Err: fmt.Errorf("parse %s: %w", s.path, err)}
	}
	return state, nil
}

func decodeDataFile(data []byte) (*fileState, error) {
	trimmed := bytes.TrimSpace(data)
	state := &fileState{version: hashBytes(data)}

	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '[':
		parcels, err := decodeLegacyParcels(trimmed)
		if err != nil {
			return nil, err
		}
		state.parcels = parcels
	default:
		var doc fileDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, err
		}
		state.parcels = doc.Parcels
		state.nextID = doc.NextID
	}

	var maxID int64
	for _, p := range state.parcels {
		if int64(p.ID) > maxID {
			maxID = int64(p.ID)
		}
	}
	if state.nextID <= maxID {
		state.nextID = maxID + 1
	}
	return state, nil
}

// persist writes state atomically and records its version.
// Must be called with writeMu held.
func (s *FileStore) persist(state *fileState) error {
	doc := fileDocument{NextID: state.nextID, Parcels: state.parcels}
	if doc.Parcels == nil {
		doc.Parcels = []parcel.Record{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Atomic write: write to temp file in the same directory, fsync, then rename.
	tmp, err := os.CreateTemp(dir, ".parcels-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	tmpName = ""

	state.version = hashBytes(data)
	return nil
}

// mutate runs fn against a private copy of the current snapshot and, if fn
// reports a change, persists and publishes the copy.
func (s *FileStore) mutate(op string, fn func(next *fileState) (changed bool, err error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.state.Load()
	next := &fileState{
		nextID:  cur.nextID,
		parcels: make([]parcel.Record, len(cur.parcels)),
		version: cur.version,
	}
	for i, p := range cur.parcels {
		next.parcels[i] = p.Clone()
	}

	changed, err := fn(next)
	if err != nil || !changed {
		return err
	}
	if err := s.persist(next); err != nil {
		return &parcel.StoreError{Op: op, Err: err}
	}
	s.state.Store(next)
	return nil
}

// Create assigns the next id and appends rec. The land id must be unused.
func (s *FileStore) Create(_ context.Context, rec parcel.Record) (*parcel.Record, error) {
	var created parcel.Record
	err := s.mutate("create", func(next *fileState) (bool, error) {
		for _, p := range next.parcels {
			if p.LandID == rec.LandID {
				return false, fmt.Errorf("%w: land id %s already exists", parcel.ErrConflict, rec.LandID)
			}
		}
		rec.ID = parcel.ID(next.nextID)
		next.nextID++
		created = rec.Clone()
		next.parcels = append(next.parcels, rec.Clone())
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *FileStore) find(match func(parcel.Record) bool) *parcel.Record {
	for _, p := range s.state.Load().parcels {
		if match(p) {
			rec := p.Clone()
			return &rec
		}
	}
	return nil
}

// Get retrieves a record by id.
// Returns nil, nil if no record exists.
func (s *FileStore) Get(_ context.Context, id parcel.ID) (*parcel.Record, error) {
	return s.find(func(p parcel.Record) bool { return p.ID == id }), nil
}

// FindByLandID retrieves a record by its land id.
// Returns nil, nil if no record exists.
func (s *FileStore) FindByLandID(_ context.Context, landID string) (*parcel.Record, error) {
	return s.find(func(p parcel.Record) bool { return p.LandID == landID }), nil
}

// FindByFingerprint retrieves a verified record by its approval fingerprint.
// Returns nil, nil if no record exists.
func (s *FileStore) FindByFingerprint(_ context.Context, fingerprint string) (*parcel.Record, error) {
	return s.find(func(p parcel.Record) bool {
		return p.Fingerprint != nil && *p.Fingerprint == fingerprint
	}), nil
}

// List returns records matching filter, newest first. Records created in
// the same instant are ordered by descending id.
func (s *FileStore) List(_ context.Context, filter parcel.Filter) ([]parcel.Record, error) {
	out := []parcel.Record{}
	for _, p := range s.state.Load().parcels {
		if filter.Matches(p) {
			out = append(out, p.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Update merges patch into the record with the given id.
// Returns nil, nil if no record exists. An error from the patch precondition
// is returned unchanged and nothing is written.
func (s *FileStore) Update(_ context.Context, id parcel.ID, patch parcel.Patch) (*parcel.Record, error) {
	var updated *parcel.Record
	err := s.mutate("update", func(next *fileState) (bool, error) {
		for i := range next.parcels {
			if next.parcels[i].ID != id {
				continue
			}
			if err := patch.Check(next.parcels[i].Clone()); err != nil {
				return false, err
			}
			patch.ApplyTo(&next.parcels[i])
			rec := next.parcels[i].Clone()
			updated = &rec
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the record with the given id. It reports false if no record
// exists. A non-nil error from check aborts the delete and is returned unchanged.
func (s *FileStore) Delete(_ context.Context, id parcel.ID, check func(parcel.Record) error) (bool, error) {
	deleted := false
	err := s.mutate("delete", func(next *fileState) (bool, error) {
		for i := range next.parcels {
			if next.parcels[i].ID != id {
				continue
			}
			if check != nil {
				if err := check(next.parcels[i].Clone()); err != nil {
					return false, err
				}
			}
			next.parcels = append(next.parcels[:i], next.parcels[i+1:]...)
			deleted = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// Reload re-reads the data file if its content differs from the last version
// this store wrote or loaded. It reports whether a new snapshot was published.
func (s *FileStore) Reload() (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Mid-rename or removed; keep serving the current snapshot.
			return false, nil
		}
		return false, &parcel.StoreError{Op: "reload", Err: err}
	}
	if hashBytes(data) == s.state.Load().version {
		return false, nil
	}
	if len(data) > maxDataFileSize {
		return false, &parcel.StoreError{Op: "reload", Err: ErrDataFileTooLarge}
	}
	state, err := decodeDataFile(data)
	if err != nil {
		return false, &parcel.StoreError{Op: "reload", Err: err}
	}
	if cur := s.state.Load(); state.nextID < cur.nextID {
		// Never hand out an id twice, even if the file was rolled back.
		state.nextID = cur.nextID
	}
	s.state.Store(state)
	return true, nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
