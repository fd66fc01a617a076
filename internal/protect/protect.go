// Package protect decides whether a path is a protected configuration file
// that no tool may modify, regardless of gate policy.
package protect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/pathid"
)

// RefreshInterval is how long the identity cache of protected files is
// trusted before the directories are scanned again.
const RefreshInterval = 30 * time.Second

// ScanDepth bounds how many ancestors of the working directory are scanned.
const ScanDepth = 5

// Patterns holds the raw protection rules.
type Patterns struct {
	Basenames []string `yaml:"basenames"`
	Prefixes  []string `yaml:"prefixes"`
	Files     []string `yaml:"files"`
	// Scan lists names, relative to each scanned directory, whose file
	// identity is recorded so hardlinks and renames are caught.
	Scan []string `yaml:"scan"`
}

func (p Patterns) merge(o Patterns) Patterns {
	return Patterns{
		Basenames: append(append([]string(nil), p.Basenames...), o.Basenames...),
		Prefixes:  append(append([]string(nil), p.Prefixes...), o.Prefixes...),
		Files:     append(append([]string(nil), p.Files...), o.Files...),
		Scan:      append(append([]string(nil), p.Scan...), o.Scan...),
	}
}

// Oracle answers IsProtected.
type Oracle struct {
	raw Patterns

	mu          sync.Mutex
	identities  map[pathid.FileIdentity]string
	extra       []string
	lastRefresh time.Time
	now         func() time.Time
	cwd         func() (string, error)
}

// New creates an Oracle from p.
func New(p Patterns) *Oracle {
	files := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		if !doublestar.ValidatePattern(f) {
			logger.Named("protect").WithField("pattern", f).Warn("skipping invalid protected pattern")
			continue
		}
		files = append(files, f)
	}
	p.Files = files
	return &Oracle{
		raw:        p,
		identities: make(map[pathid.FileIdentity]string),
		now:        time.Now,
		cwd:        os.Getwd,
	}
}

// NewDefault creates an Oracle with DefaultPatterns.
func NewDefault() *Oracle {
	return New(DefaultPatterns)
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolgate", "protected.yaml")
}

// Load reads extra rules from a YAML file and adds them to the defaults.
// A missing file yields the defaults. A malformed file is logged and
// ignored; only unreadable files are an error.
func Load(path string) (*Oracle, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return NewDefault(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefault(), nil
		}
		return nil, fmt.Errorf("failed to read protected list: %w", err)
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		logger.Named("protect").WithField("path", path).
			Warnf("failed to parse protected list, using defaults: %v", err)
		return NewDefault(), nil
	}
	return New(DefaultPatterns.merge(p)), nil
}

// Patterns returns the active rules.
func (o *Oracle) Patterns() Patterns {
	return o.raw.merge(Patterns{})
}

// AddPath protects a specific file by identity, for example a policy file
// loaded from a non-standard location.
func (o *Oracle) AddPath(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, path)
	o.addIdentityLocked(path)
}

// IsProtected reports whether path names a protected file, by basename,
// by glob, or by file identity.
func (o *Oracle) IsProtected(path string) bool {
	if path == "" {
		return false
	}
	norm := normalize(path)
	if o.matchBasename(baseName(norm)) || o.matchGlob(norm) {
		return true
	}

	id, err := pathid.Identify(path)
	if err != nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshLocked()
	_, ok := o.identities[id]
	return ok
}

// Refresh forces the identity cache to be rebuilt.
func (o *Oracle) Refresh() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastRefresh = time.Time{}
	o.refreshLocked()
}

func (o *Oracle) matchBasename(base string) bool {
	for _, b := range o.raw.Basenames {
		if foldEqual(base, b) {
			return true
		}
	}
	for _, p := range o.raw.Prefixes {
		if len(base) >= len(p) && foldEqual(base[:len(p)], p) {
			return true
		}
	}
	return false
}

func (o *Oracle) matchGlob(norm string) bool {
	rel := strings.TrimPrefix(norm, "/")
	for _, f := range o.raw.Files {
		pat := f
		if runtime.GOOS == "windows" {
			pat = strings.ToLower(pat)
		}
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

func (o *Oracle) refreshLocked() {
	now := o.now()
	if !o.lastRefresh.IsZero() && now.Sub(o.lastRefresh) < RefreshInterval {
		return
	}
	o.lastRefresh = now
	clear(o.identities)

	for _, p := range o.extra {
		o.addIdentityLocked(p)
	}
	cwd, err := o.cwd()
	if err != nil {
		return
	}
	dir := cwd
	for depth := 0; depth <= ScanDepth; depth++ {
		o.scanLocked(dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	o.scanLocked(string(filepath.Separator))
}

func (o *Oracle) scanLocked(dir string) {
	for _, name := range o.raw.Scan {
		o.addIdentityLocked(filepath.Join(dir, filepath.FromSlash(name)))
	}
}

func (o *Oracle) addIdentityLocked(path string) {
	id, err := pathid.Identify(path)
	if err != nil || !id.Valid() {
		return
	}
	if _, ok := o.identities[id]; !ok {
		o.identities[id] = path
	}
}

func normalize(path string) string {
	p := filepath.ToSlash(filepath.Clean(path))
	if runtime.GOOS == "windows" {
		p = strings.ToLower(p)
	}
	return p
}

func baseName(norm string) string {
	if i := strings.LastIndexByte(norm, '/'); i >= 0 {
		return norm[i+1:]
	}
	return norm
}

func foldEqual(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
