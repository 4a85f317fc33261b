// Package attach tracks locally minted attachment handles (spool files)
// grouped by a scope key, so every handle can be released exactly once when
// its message is confirmed or its compose session ends.
package attach

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/chatclient/internal/logger"
	"github.com/google/uuid"
)

const localScheme = "spool://"

// PreviewScope returns the registry scope for compose-time previews of a
// conversation (attachments picked but not yet sent).
func PreviewScope(conversationID string) string {
	return "preview:" + conversationID
}

// Registry owns local attachment handles. A handle is a "spool://<id>" URL
// backed by a file under the spool directory; Revoke deletes the file.
// Scope keys are a message tempId or a PreviewScope key.
type Registry struct {
	mu       sync.Mutex
	spoolDir string
	scopes   map[string]map[string]struct{} // scopeKey -> set of local URLs
	paths    map[string]string              // local URL -> spool file path
	release  func(path string) error
}

func NewRegistry(spoolDir string) *Registry {
	return &Registry{
		spoolDir: spoolDir,
		scopes:   make(map[string]map[string]struct{}),
		paths:    make(map[string]string),
		release:  os.Remove,
	}
}

// Mint copies srcPath into the spool directory and tracks the resulting
// handle under scopeKey. The returned URL is what the render layer shows
// until a canonical remote URL replaces it.
func (r *Registry) Mint(scopeKey, srcPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("attach.Mint open: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(r.spoolDir, 0o755); err != nil {
		return "", fmt.Errorf("attach.Mint spool dir: %w", err)
	}
	id := uuid.New().String()
	dstPath := filepath.Join(r.spoolDir, id+filepath.Ext(srcPath))
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("attach.Mint create: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("attach.Mint copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("attach.Mint close: %w", err)
	}

	url := localScheme + id
	r.mu.Lock()
	r.paths[url] = dstPath
	r.trackLocked(scopeKey, url)
	r.mu.Unlock()
	return url, nil
}

// Track registers an existing handle under a scope. Idempotent.
func (r *Registry) Track(scopeKey, url string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackLocked(scopeKey, url)
	return url
}

func (r *Registry) trackLocked(scopeKey, url string) {
	set, ok := r.scopes[scopeKey]
	if !ok {
		set = make(map[string]struct{})
		r.scopes[scopeKey] = set
	}
	set[url] = struct{}{}
}

// Resolve returns the spool file path behind a handle.
func (r *Registry) Resolve(url string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.paths[url]
	return p, ok
}

// Revoke releases the underlying file and removes the handle from every
// scope that references it. Safe to call on an already-released URL.
func (r *Registry) Revoke(url string) {
	r.mu.Lock()
	path, ok := r.paths[url]
	delete(r.paths, url)
	for key, set := range r.scopes {
		delete(set, url)
		if len(set) == 0 {
			delete(r.scopes, key)
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := r.release(path); err != nil && !os.IsNotExist(err) {
		logger.Errorf("attach revoke %s: %v", url, err)
	}
}

// RevokeScope revokes every handle under a scope, then deletes the scope.
// No-op for an unknown scope.
func (r *Registry) RevokeScope(scopeKey string) {
	r.mu.Lock()
	set := r.scopes[scopeKey]
	urls := make([]string, 0, len(set))
	for url := range set {
		urls = append(urls, url)
	}
	r.mu.Unlock()

	for _, url := range urls {
		r.Revoke(url)
	}

	r.mu.Lock()
	delete(r.scopes, scopeKey)
	r.mu.Unlock()
}

// RekeyScope moves every handle from one scope key to another, preserving
// the handles themselves. Used when a placeholder conversation id is
// promoted to the durable id.
func (r *Registry) RekeyScope(oldKey, newKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.scopes[oldKey]
	if !ok {
		return
	}
	delete(r.scopes, oldKey)
	dst, ok := r.scopes[newKey]
	if !ok {
		r.scopes[newKey] = set
		return
	}
	for url := range set {
		dst[url] = struct{}{}
	}
}

// ScopeLen reports how many handles a scope currently holds.
func (r *Registry) ScopeLen(scopeKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes[scopeKey])
}

// SetReleaseFunc overrides file removal; tests use it to count releases.
func (r *Registry) SetReleaseFunc(fn func(path string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.release = fn
}
