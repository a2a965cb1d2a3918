// Package local provides the catalogue entries declared by the active
// document: its bibliography files and inline references.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/bipcite/internal/config"
	"github.com/matsen/bipcite/internal/document"
	"github.com/matsen/bipcite/internal/importer"
	"github.com/matsen/bipcite/internal/logging"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/reference"
)

// Key identifies the provider.
const Key = "local"

// fingerprint identifies one version of a bibliography file.
type fingerprint struct {
	Size    int64
	ModTime time.Time
	Hash    string
}

// Provider reads bibliography files listed in the document front matter.
type Provider struct {
	logger *zap.Logger

	mu           sync.RWMutex
	entries      []reference.Entry
	loaded       bool
	paths        []string
	fingerprints map[string]fingerprint
	inlineHash   string
}

// New creates a Local-File provider.
func New(logger *zap.Logger) *Provider {
	return &Provider{logger: logging.OrNop(logger), fingerprints: map[string]fingerprint{}}
}

// Key returns "local".
func (p *Provider) Key() string { return Key }

// Entries returns the last successfully loaded snapshot.
func (p *Provider) Entries() []reference.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries
}

// Collections returns nil; bibliography files have no grouping.
func (p *Provider) Collections(*document.Context) []reference.Collection { return nil }

// Load re-reads the document's bibliography files unless every file
// fingerprint and the inline block are unchanged since the last success.
func (p *Provider) Load(ctx context.Context, doc *document.Context) provider.LoadOutcome {
	var paths []string
	var inline []reference.Entry
	if doc != nil {
		for _, path := range doc.BibliographyPaths() {
			paths = append(paths, config.ExpandPath(path))
		}
		inline = doc.References
	}
	inlineHash := hashInline(inline)

	p.mu.RLock()
	prev := p.fingerprints
	unchanged := p.loaded && inlineHash == p.inlineHash && samePaths(paths, p.paths)
	p.mu.RUnlock()

	next := make(map[string]fingerprint, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return provider.Failed("Loading bibliography was cancelled", err)
		}
		fp, err := fingerprintFile(path, prev[path])
		if err != nil {
			p.logger.Warn("bibliography unavailable", zap.String("path", path), zap.Error(err))
			return provider.Failed(fmt.Sprintf("Unable to read bibliography %s", filepath.Base(path)), err)
		}
		next[path] = fp
		if fp.Hash != prev[path].Hash {
			unchanged = false
		}
	}
	if unchanged {
		// Keep fresh mtimes so touched files are not hashed again.
		p.mu.Lock()
		p.fingerprints = next
		p.mu.Unlock()
		return provider.Unchanged()
	}

	entries := make([]reference.Entry, 0, len(inline))
	entries = append(entries, inline...)
	var warnings []error
	for _, path := range paths {
		fileEntries, errs := importer.ReadFile(path, Key)
		if len(errs) > 0 && len(fileEntries) == 0 {
			err := errors.Join(errs...)
			p.logger.Warn("bibliography parse failed", zap.String("path", path), zap.Error(err))
			return provider.Failed(fmt.Sprintf("Error reading bibliography %s", filepath.Base(path)), err)
		}
		warnings = append(warnings, errs...)
		entries = append(entries, fileEntries...)
	}

	p.mu.Lock()
	p.entries = entries
	p.loaded = true
	p.paths = paths
	p.fingerprints = next
	p.inlineHash = inlineHash
	p.mu.Unlock()

	out := provider.Updated()
	if len(warnings) > 0 {
		out.Err = errors.Join(warnings...)
		out.Reason = fmt.Sprintf("%d bibliography entries could not be read", len(warnings))
		p.logger.Warn("skipped malformed entries", zap.Int("count", len(warnings)), zap.Error(out.Err))
	}
	return out
}

// fingerprintFile stats path and hashes it only when size or mtime moved.
func fingerprintFile(path string, prev fingerprint) (fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}, err
	}
	fp := fingerprint{Size: info.Size(), ModTime: info.ModTime()}
	if prev.Hash != "" && prev.Size == fp.Size && prev.ModTime.Equal(fp.ModTime) {
		fp.Hash = prev.Hash
		return fp, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fingerprint{}, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fingerprint{}, err
	}
	fp.Hash = hex.EncodeToString(h.Sum(nil))
	return fp, nil
}

func hashInline(entries []reference.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	data, _ := json.Marshal(entries)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func samePaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
