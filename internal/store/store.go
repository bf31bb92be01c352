// Package store implements content-addressed, deduplicated persistence of
// wallpaper bytes and metadata. Blobs live on disk under their content hash;
// the metadata index lives in BoltDB with a full in-memory mirror for reads.
package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/muralhq/mural/internal/color"
	"github.com/muralhq/mural/internal/dedup"
	"github.com/muralhq/mural/internal/domain"
	"github.com/muralhq/mural/internal/query"
)

// Bucket names
var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")

	keyTotalSize = []byte("total_size")
)

const (
	dbName       = "mural.db"
	blobDirName  = "blobs"
	thumbDirName = "thumbs"

	ingestShards = 16
	thumbMaxEdge = 320
)

// Config holds the store's resource bounds and sensitivities.
type Config struct {
	Dir                string // Cache root directory
	CapBytes           int64  // Aggregate blob size cap; 0 disables
	MaxItems           int    // Entry count cap; 0 disables
	DuplicateThreshold int    // Max Hamming distance treated as a near-duplicate
	ProtectThreshold   int    // Rating at or above which entries are protected
}

// ContentStore owns the on-disk blobs and the metadata index. All ingest,
// mutation and deletion flows through it; the duplicate detector's index is
// kept consistent with the store's lifecycle.
type ContentStore struct {
	cfg      Config
	blobDir  string
	thumbDir string
	db       *bolt.DB
	detector *dedup.Detector
	logger   zerolog.Logger

	mu        sync.RWMutex // Protects entries, totalSize, active
	entries   map[string]domain.CacheEntry
	totalSize int64
	active    map[string]bool

	// Per-hash-shard locks make concurrent ingests of identical bytes an
	// atomic check-and-insert.
	ingestMu [ingestShards]sync.Mutex
}

// New opens (or creates) the cache at cfg.Dir. A corrupt metadata index is
// rebuilt by rescanning the blob directory; startup never fails on bad
// metadata alone.
func New(cfg Config, detector *dedup.Detector, logger zerolog.Logger) (*ContentStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("store: cache directory not configured")
	}
	if cfg.ProtectThreshold <= 0 {
		cfg.ProtectThreshold = 4
	}
	if cfg.DuplicateThreshold <= 0 {
		cfg.DuplicateThreshold = dedup.Similar
	}

	s := &ContentStore{
		cfg:      cfg,
		blobDir:  filepath.Join(cfg.Dir, blobDirName),
		thumbDir: filepath.Join(cfg.Dir, thumbDirName),
		detector: detector,
		logger:   logger,
		entries:  make(map[string]domain.CacheEntry),
		active:   make(map[string]bool),
	}

	for _, dir := range []string{cfg.Dir, s.blobDir, s.thumbDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}

	dbPath := filepath.Join(cfg.Dir, dbName)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		// An unopenable index is treated like corrupt metadata: move it
		// aside and rebuild from the blobs.
		logger.Warn().Err(err).Str("path", dbPath).Msg("metadata index unreadable, rebuilding")
		if renameErr := os.Rename(dbPath, dbPath+".corrupt"); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, fmt.Errorf("store: quarantine corrupt index: %w", renameErr)
		}
		db, err = bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("store: open index: %w", err)
		}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}
	s.db = db

	if err := s.loadIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadIndex mirrors the persisted index into memory, reconciling it against
// the blob directory. Records without bytes are dropped; bytes without a
// readable record are reconstructed.
func (s *ContentStore) loadIndex() error {
	loaded := make(map[string]domain.CacheEntry)
	var corrupt []string

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		return b.ForEach(func(k, v []byte) error {
			var e domain.CacheEntry
			if err := json.Unmarshal(v, &e); err != nil || e.ID != string(k) {
				corrupt = append(corrupt, string(k))
				return nil
			}
			loaded[e.ID] = e
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("store: read index: %w", err)
	}

	blobs, err := s.scanBlobs()
	if err != nil {
		return err
	}

	for id, e := range loaded {
		path, ok := blobs[id]
		if !ok {
			s.logger.Warn().Str("id", id).Msg("index record has no bytes, dropping")
			s.deleteRecord(id)
			continue
		}
		e.LocalPath = path
		s.entries[id] = e
		s.totalSize += e.SizeBytes
		s.detector.Index(id, e.PerceptualHash)
		delete(blobs, id)
	}

	// Whatever is left in blobs has no (valid) record: rebuild it.
	rebuilt := 0
	for id, path := range blobs {
		e, err := s.rebuildEntry(id, path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("unreconstructable blob, dropping from index")
			continue
		}
		if err := s.putRecord(e); err != nil {
			return err
		}
		s.entries[id] = e
		s.totalSize += e.SizeBytes
		s.detector.Index(id, e.PerceptualHash)
		rebuilt++
	}

	for _, id := range corrupt {
		s.deleteRecord(id)
	}
	if len(corrupt) > 0 || rebuilt > 0 {
		s.logger.Warn().
			Int("corrupt", len(corrupt)).
			Int("rebuilt", rebuilt).
			Msg("metadata index reconciled against blob directory")
	}

	if stored, ok := s.loadTotalSize(); ok && stored != s.totalSize {
		s.logger.Warn().
			Int64("stored", stored).
			Int64("actual", s.totalSize).
			Msg("persisted size total drifted, correcting")
	}
	s.saveTotalSize()

	s.logger.Info().
		Int("entries", len(s.entries)).
		Str("size", humanize.Bytes(uint64(s.totalSize))).
		Msg("cache opened")
	return nil
}

// loadTotalSize reads the persisted aggregate size from the meta bucket.
func (s *ContentStore) loadTotalSize() (int64, bool) {
	var v int64
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketMeta).Get(keyTotalSize); raw != nil {
			if err := json.Unmarshal(raw, &v); err == nil {
				found = true
			}
		}
		return nil
	})
	return v, found
}

// saveTotalSize persists the aggregate size so the next open can detect
// drift without summing first.
func (s *ContentStore) saveTotalSize() {
	s.mu.RLock()
	total := s.totalSize
	s.mu.RUnlock()

	raw, err := json.Marshal(total)
	if err != nil {
		return
	}
	s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyTotalSize, raw)
	})
}

// scanBlobs maps content hash -> blob path for every file in the blob dir.
func (s *ContentStore) scanBlobs() (map[string]string, error) {
	files, err := os.ReadDir(s.blobDir)
	if err != nil {
		return nil, fmt.Errorf("store: scan blobs: %w", err)
	}
	blobs := make(map[string]string, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		id := strings.TrimSuffix(name, filepath.Ext(name))
		blobs[id] = filepath.Join(s.blobDir, name)
	}
	return blobs, nil
}

// rebuildEntry reconstructs a metadata record from raw bytes on disk.
func (s *ContentStore) rebuildEntry(id, path string) (domain.CacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	if contentHash(data) != id {
		return domain.CacheEntry{}, fmt.Errorf("content hash mismatch for %s", path)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.CacheEntry{}, err
	}
	fp, err := dedup.Fingerprint(img)
	if err != nil {
		return domain.CacheEntry{}, err
	}

	downloadedAt := time.Now().UTC()
	if info, err := os.Stat(path); err == nil {
		downloadedAt = info.ModTime().UTC()
	}
	return domain.CacheEntry{
		ID:              id,
		PerceptualHash:  fp,
		LocalPath:       path,
		ThumbPath:       s.existingThumb(id),
		SizeBytes:       int64(len(data)),
		Provider:        "unknown",
		ColorCategories: color.Categories(img, color.DefaultColors),
		DownloadedAt:    downloadedAt,
	}, nil
}

func (s *ContentStore) existingThumb(id string) string {
	path := filepath.Join(s.thumbDir, id+".jpg")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Close releases the underlying index.
func (s *ContentStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// contentHash is the stable identity of an image: hex SHA-256 of its bytes.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func shard(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % ingestShards)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".jpg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Ingest stores image bytes under their content hash. Identical bytes
// collapse to the already-stored entry. Near-duplicates are rejected with
// ErrDuplicateRejected (and the matching entry) unless force is set. When
// the cap is exceeded after the write, eviction runs inline; if it cannot
// free enough space the entry is still kept and ErrStorageOverCap is
// returned alongside it for the caller to log.
func (s *ContentStore) Ingest(ctx context.Context, data []byte, meta domain.SourceMeta, force bool) (domain.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.CacheEntry{}, err
	}
	if len(data) == 0 {
		return domain.CacheEntry{}, fmt.Errorf("store: ingest empty payload")
	}

	id := contentHash(data)

	// Serialize concurrent ingests of the same hash so exactly one writes.
	lock := &s.ingestMu[shard(id)]
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	existing, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		s.logger.Debug().Str("id", shortID(id)).Msg("ingest of already-cached bytes")
		return existing, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("store: decode image: %w", err)
	}
	fp, err := dedup.Fingerprint(img)
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("store: fingerprint: %w", err)
	}

	if !force {
		if matches := s.detector.FindNear(fp, s.cfg.DuplicateThreshold); len(matches) > 0 {
			near, err := s.Get(matches[0].ID)
			if err == nil {
				s.logger.Info().
					Str("near", shortID(near.ID)).
					Int("distance", matches[0].Distance).
					Str("similarity", dedup.SimilarityLabel(matches[0].Distance)).
					Msg("ingest rejected as near-duplicate")
				return near, fmt.Errorf("%w of %s (distance %d)", domain.ErrDuplicateRejected, shortID(near.ID), matches[0].Distance)
			}
		}
	}

	blobPath := filepath.Join(s.blobDir, id+normalizeExt(meta.Ext))
	if err := writeFileAtomic(blobPath, data); err != nil {
		return domain.CacheEntry{}, fmt.Errorf("store: write blob: %w", err)
	}

	entry := domain.CacheEntry{
		ID:              id,
		PerceptualHash:  fp,
		LocalPath:       blobPath,
		ThumbPath:       s.writeThumb(id, img),
		SizeBytes:       int64(len(data)),
		Provider:        meta.Provider,
		SourceTags:      meta.Tags,
		ColorCategories: color.Categories(img, color.DefaultColors),
		DownloadedAt:    time.Now().UTC(),
	}

	if err := s.putRecord(entry); err != nil {
		os.Remove(blobPath)
		return domain.CacheEntry{}, err
	}

	s.mu.Lock()
	s.entries[id] = entry
	s.totalSize += entry.SizeBytes
	s.mu.Unlock()
	s.saveTotalSize()

	// Index only after the commit succeeded.
	s.detector.Index(id, fp)

	s.logger.Info().
		Str("id", shortID(id)).
		Str("provider", meta.Provider).
		Str("size", humanize.Bytes(uint64(entry.SizeBytes))).
		Msg("ingested")

	if s.overCap() {
		if stillOver := s.evict(ctx); stillOver {
			return entry, domain.ErrStorageOverCap
		}
	}
	return entry, nil
}

// writeThumb generates a small preview next to the blob. Thumbnails are
// best-effort; failures leave ThumbPath empty.
func (s *ContentStore) writeThumb(id string, img image.Image) string {
	thumb := resize.Thumbnail(thumbMaxEdge, thumbMaxEdge, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		s.logger.Debug().Err(err).Str("id", shortID(id)).Msg("thumbnail encode failed")
		return ""
	}
	path := filepath.Join(s.thumbDir, id+".jpg")
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		s.logger.Debug().Err(err).Str("id", shortID(id)).Msg("thumbnail write failed")
		return ""
	}
	return path
}

// Get returns the entry with the given id.
func (s *ContentStore) Get(id string) (domain.CacheEntry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return domain.CacheEntry{}, fmt.Errorf("%w: %s", domain.ErrNotFound, shortID(id))
	}
	return e, nil
}

// Update applies a metadata mutation and persists the result.
func (s *ContentStore) Update(id string, m domain.Mutation) (domain.CacheEntry, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return domain.CacheEntry{}, fmt.Errorf("%w: %s", domain.ErrNotFound, shortID(id))
	}

	if m.Rating != nil {
		r := *m.Rating
		if r < 0 {
			r = 0
		}
		if r > 5 {
			r = 5
		}
		e.Rating = r
	}
	if m.Favorite != nil {
		e.IsFavorite = *m.Favorite
	}
	if m.Starred != nil {
		e.IsStarred = *m.Starred
	}
	if m.IncrementView {
		e.ViewCount++
	}
	if m.AppliedAt != nil {
		at := m.AppliedAt.UTC()
		e.LastAppliedAt = &at
	}

	s.entries[id] = e
	s.mu.Unlock()

	if err := s.putRecord(e); err != nil {
		return domain.CacheEntry{}, err
	}
	return e, nil
}

// MarkApplied refreshes LastAppliedAt and bumps the view count.
func (s *ContentStore) MarkApplied(id string, at time.Time) error {
	_, err := s.Update(id, domain.Mutation{IncrementView: true, AppliedAt: &at})
	return err
}

// Delete removes an entry, its bytes and any thumbnail. Explicit deletes
// ignore protection status.
func (s *ContentStore) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, shortID(id))
	}
	delete(s.entries, id)
	s.totalSize -= e.SizeBytes
	s.mu.Unlock()

	s.removeArtifacts(e)

	s.logger.Info().Str("id", shortID(id)).Msg("deleted")
	return nil
}

// removeArtifacts drops everything attached to an already-unmapped entry:
// its fingerprint, its bolt record, the persisted size total, the blob and
// any thumbnail. The fingerprint goes first so the id stops matching as a
// duplicate before the delete is acknowledged.
func (s *ContentStore) removeArtifacts(e domain.CacheEntry) {
	s.detector.Remove(e.ID)

	s.deleteRecord(e.ID)
	s.saveTotalSize()
	if err := os.Remove(e.LocalPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("id", shortID(e.ID)).Msg("blob removal failed")
	}
	if e.ThumbPath != "" {
		os.Remove(e.ThumbPath)
	}
}

// List yields entries matching the filter. Each iteration re-evaluates the
// filter against current state; order is not guaranteed.
func (s *ContentStore) List(f domain.Filter) iter.Seq[domain.CacheEntry] {
	return func(yield func(domain.CacheEntry) bool) {
		s.mu.RLock()
		matched := make([]domain.CacheEntry, 0, len(s.entries))
		for _, e := range s.entries {
			if !f.Matches(e) {
				continue
			}
			if f.Query != "" && !query.MatchEntry(f.Query, e) {
				continue
			}
			matched = append(matched, e)
		}
		s.mu.RUnlock()

		for _, e := range matched {
			if !yield(e) {
				return
			}
		}
	}
}

// SetActive replaces the set of entry ids currently visible on monitors.
func (s *ContentStore) SetActive(ids []string) {
	s.mu.Lock()
	s.active = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.active[id] = true
	}
	s.mu.Unlock()
}

// TotalSize returns the aggregate size of all stored blobs.
func (s *ContentStore) TotalSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSize
}

// Count returns the number of stored entries.
func (s *ContentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// === Index persistence ===

func (s *ContentStore) putRecord(e domain.CacheEntry) error {
	// Indented JSON keeps the persisted records human-diffable.
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(e.ID), data)
	})
}

func (s *ContentStore) deleteRecord(id string) {
	s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(id))
	})
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// writeFileAtomic stages the payload beside the target and renames it into
// place so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
