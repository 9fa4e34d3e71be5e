package inference

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/skarlatos/scoreline/internal/modules/training"
)

// ModelCache keeps loaded artifacts in memory, keyed by model ID.
// Concurrent cold misses for the same model collapse to one disk load, and a
// filesystem watcher evicts entries when their artifact file changes, so a
// retrain is picked up without a restart.
type ModelCache struct {
	modelDir string
	log      zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*training.Artifact
	group   singleflight.Group

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewModelCache creates a cache over modelDir. The directory watch is best
// effort: if it cannot be established the cache still works, it just never
// self-invalidates.
func NewModelCache(modelDir string, log zerolog.Logger) *ModelCache {
	c := &ModelCache{
		modelDir: modelDir,
		log:      log.With().Str("service", "model_cache").Logger(),
		entries:  make(map[string]*training.Artifact),
		done:     make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Warn().Err(err).Msg("Artifact watcher unavailable, cache will not self-invalidate")
		return c
	}
	if err := watcher.Add(modelDir); err != nil {
		c.log.Warn().Err(err).Str("dir", modelDir).Msg("Cannot watch model directory")
		watcher.Close()
		return c
	}

	c.watcher = watcher
	go c.watch()

	return c
}

// Get returns the artifact for a model, loading it from disk on a cold miss.
func (c *ModelCache) Get(modelID string) (*training.Artifact, error) {
	c.mu.RLock()
	artifact, ok := c.entries[modelID]
	c.mu.RUnlock()
	if ok {
		return artifact, nil
	}

	v, err, _ := c.group.Do(modelID, func() (interface{}, error) {
		// Another waiter may have populated the entry already.
		c.mu.RLock()
		cached, ok := c.entries[modelID]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		loaded, err := training.LoadArtifact(training.ArtifactPath(c.modelDir, modelID), modelID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[modelID] = loaded
		c.mu.Unlock()

		c.log.Info().Str("model_id", modelID).Msg("Model artifact loaded")
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*training.Artifact), nil
}

// Invalidate drops one model's cached artifact.
func (c *ModelCache) Invalidate(modelID string) {
	c.mu.Lock()
	delete(c.entries, modelID)
	c.mu.Unlock()
}

// Close stops the filesystem watcher.
func (c *ModelCache) Close() {
	close(c.done)
	if c.watcher != nil {
		c.watcher.Close()
	}
}

func (c *ModelCache) watch() {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			modelID, ok := modelIDFromArtifact(filepath.Base(event.Name))
			if !ok {
				continue
			}
			c.Invalidate(modelID)
			c.log.Debug().Str("model_id", modelID).Str("op", event.Op.String()).Msg("Artifact changed, cache entry evicted")
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn().Err(err).Msg("Artifact watcher error")
		}
	}
}

// modelIDFromArtifact extracts the model ID from an artifact file name of
// the form model_<id>.artifact.
func modelIDFromArtifact(name string) (string, bool) {
	const prefix, suffix = "model_", ".artifact"
	if len(name) <= len(prefix)+len(suffix) {
		return "", false
	}
	if name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	return name[len(prefix) : len(name)-len(suffix)], true
}
