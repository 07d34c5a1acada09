package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/cespare/xxhash/v2"
	"github.com/lgulliver/quarry/internal/storage"
	"github.com/rs/zerolog/log"
)

// DefaultShards is used when NewStore is given a non-positive shard count
const DefaultShards = 32

// ErrNotFound is returned when no artifact is stored for a key
var ErrNotFound = errors.New("artifact not found")

// RemoteCache is an optional second cache tier shared between processes.
// common.Cache implements it on top of Redis.
type RemoteCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type shard struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// Store keeps artifact bytes on blob storage with an in-memory read cache.
// The cache is split into shards selected by hashing the key, so a load for
// one key only blocks keys that share its shard.
type Store struct {
	blob   storage.BlobStorage
	remote RemoteCache
	shards []*shard
}

// NewStore creates an artifact store over blob. remote may be nil.
func NewStore(blob storage.BlobStorage, remote RemoteCache, shards int) *Store {
	if shards <= 0 {
		shards = DefaultShards
	}

	s := &Store{
		blob:   blob,
		remote: remote,
		shards: make([]*shard, shards),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string][]byte)}
	}
	return s
}

// Path derives the storage key for an artifact: {id}/{major}/{minor}/{patch}
func Path(id string, v *semver.Version) string {
	return strings.Join([]string{
		id,
		strconv.FormatUint(v.Major(), 10),
		strconv.FormatUint(v.Minor(), 10),
		strconv.FormatUint(v.Patch(), 10),
	}, "/")
}

// depth is the number of directories created below the storage root for path
func depth(path string) int {
	return strings.Count(path, "/")
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Get returns the artifact bytes for id at v. The returned slice is a copy.
func (s *Store) Get(ctx context.Context, id string, v *semver.Version) ([]byte, error) {
	key := Path(id, v)
	sh := s.shardFor(key)

	sh.mu.RLock()
	data, ok := sh.entries[key]
	sh.mu.RUnlock()
	if ok {
		return bytes.Clone(data), nil
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	// another goroutine may have loaded it while we waited
	if data, ok := sh.entries[key]; ok {
		return bytes.Clone(data), nil
	}

	data, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	sh.entries[key] = data
	return bytes.Clone(data), nil
}

func (s *Store) load(ctx context.Context, key string) ([]byte, error) {
	if s.remote != nil {
		data, ok, err := s.remote.GetBytes(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("remote cache lookup failed")
		} else if ok {
			log.Debug().Str("key", key).Msg("artifact served from remote cache")
			return data, nil
		}
	}

	reader, err := s.blob.Retrieve(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	if s.remote != nil {
		if err := s.remote.SetBytes(ctx, key, data); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to populate remote cache")
		}
	}

	log.Debug().Str("key", key).Int("size", len(data)).Msg("artifact loaded from storage")
	return data, nil
}

// Put caches data and writes it to blob storage. Existing content for the
// key is overwritten.
func (s *Store) Put(ctx context.Context, id string, v *semver.Version, data []byte) error {
	key := Path(id, v)
	sh := s.shardFor(key)
	own := bytes.Clone(data)
	if own == nil {
		own = []byte{}
	}

	sh.mu.Lock()
	sh.entries[key] = own
	sh.mu.Unlock()

	if err := s.blob.Store(ctx, key, bytes.NewReader(own), "application/octet-stream"); err != nil {
		sh.mu.Lock()
		delete(sh.entries, key)
		sh.mu.Unlock()
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	if s.remote != nil {
		if err := s.remote.SetBytes(ctx, key, own); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to populate remote cache")
		}
	}

	return nil
}

// Remove deletes the artifact and then any directories left empty below the
// storage root for this key. The shard stays write-locked until the file and
// the remote entry are gone, so a concurrent Get cannot cache the old bytes.
func (s *Store) Remove(ctx context.Context, id string, v *semver.Version) error {
	key := Path(id, v)
	sh := s.shardFor(key)

	sh.mu.Lock()
	delete(sh.entries, key)
	err := s.blob.Delete(ctx, key)
	s.evictRemote(ctx, key)
	sh.mu.Unlock()

	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	// the leaf is gone; a failed prune only leaves empty directories behind
	if _, err := s.blob.PruneEmptyParents(ctx, key, depth(key)); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to prune artifact directories")
	}
	return nil
}

// Exists reports whether bytes are stored for id at v
func (s *Store) Exists(ctx context.Context, id string, v *semver.Version) (bool, error) {
	return s.blob.Exists(ctx, Path(id, v))
}

// Cached reports whether the key is held in the in-memory cache
func (s *Store) Cached(id string, v *semver.Version) bool {
	key := Path(id, v)
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.entries[key]
	return ok
}

// Evict drops any cached copy of id at v without touching blob storage
func (s *Store) Evict(ctx context.Context, id string, v *semver.Version) {
	s.evict(ctx, Path(id, v))
}

func (s *Store) evict(ctx context.Context, key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	s.evictRemote(ctx, key)
	sh.mu.Unlock()
}

func (s *Store) evictRemote(ctx context.Context, key string) {
	if s.remote == nil {
		return
	}
	if err := s.remote.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to evict remote cache entry")
	}
}
