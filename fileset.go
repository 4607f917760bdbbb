package liveserver

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileSet tracks the files under the root with their last known
// modification time
type FileSet struct {
	mu    sync.RWMutex
	files map[string]time.Time
}

func NewFileSet() *FileSet {
	return &FileSet{files: map[string]time.Time{}}
}

// Update records the modification time of path. It returns false when the
// path was already known with the same time.
func (s *FileSet) Update(path string, modTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.files[path]
	if ok && prev.Equal(modTime) {
		return false
	}
	s.files[path] = modTime
	return true
}

// Remove path and anything beneath it. It returns the number of files
// removed.
func (s *FileSet) Remove(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	if _, ok := s.files[path]; ok {
		delete(s.files, path)
		removed++
	}
	prefix := path + string(os.PathSeparator)
	for name := range s.files {
		if strings.HasPrefix(name, prefix) {
			delete(s.files, name)
			removed++
		}
	}
	return removed
}

// ModTime returns the recorded modification time of path
func (s *FileSet) ModTime(path string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.files[path]
	return t, ok
}

func (s *FileSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Paths returns the tracked paths in sorted order
func (s *FileSet) Paths() []string {
	s.mu.RLock()
	paths := make([]string, 0, len(s.files))
	for name := range s.files {
		paths = append(paths, name)
	}
	s.mu.RUnlock()
	sort.Slice(paths, func(i, j int) bool {
		return filepath.ToSlash(paths[i]) < filepath.ToSlash(paths[j])
	})
	return paths
}
