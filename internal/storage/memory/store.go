// Package memory is an in-process ObjectStore for tests and local runs
// without MinIO.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rapbattles/batalla/internal/storage"
)

type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

type object struct {
	payload  []byte
	modified time.Time
}

func New() *Store {
	return &Store{objects: map[string]object{}}
}

func (s *Store) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	key, err := cleanKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("read object body: %w", err)
	}
	obj := object{payload: payload, modified: time.Now().UTC()}

	s.mu.Lock()
	s.objects[key] = obj
	s.mu.Unlock()
	return info(key, obj), nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(obj.payload)), nil
}

func (s *Store) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	return info(key, obj), nil
}

func (s *Store) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	s.mu.RLock()
	infos := make([]storage.ObjectInfo, 0)
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, info(key, obj))
		}
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) lookup(key string) (object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return object{}, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return object{}, fmt.Errorf("object %q: %w", key, storage.ErrObjectNotFound)
	}
	return obj, nil
}

func cleanKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return cleaned, nil
}

func info(key string, obj object) storage.ObjectInfo {
	return storage.ObjectInfo{Key: key, Size: int64(len(obj.payload)), LastModified: obj.modified}
}
