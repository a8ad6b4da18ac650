// Package registry is the Config Registry: it scans a directory of YAML
// workflow documents, lazily parses/validates/compiles each on first use,
// and caches the result for the life of the process. Grounded on the
// scan-and-cache shape of original_source/src/core/config_loader.py's
// ConfigLoader/ConfigManager, re-expressed with Go's directory scanning and
// a mutex-guarded cache rather than a Python dict behind a class instance.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/devyk/kaflow-go/internal/kerrors"
	"github.com/devyk/kaflow-go/internal/kflog"
	"github.com/devyk/kaflow-go/internal/protocol"
	"github.com/devyk/kaflow-go/internal/workflow"
)

// Entry is one scanned-but-not-necessarily-loaded config.
type Entry struct {
	ID       string
	Path     string
	Meta     protocol.Meta
	Agents   int
	Nodes    int
	Edges    int
	Compiled *workflow.Compiled
}

// Info is the List() row: summary fields plus whether the graph has
// already been compiled.
type Info struct {
	ID          string
	Name        string
	Description string
	Version     string
	Author      string
	AgentsCount int
	NodesCount  int
	EdgesCount  int
	Cached      bool
}

// Registry scans dir once at construction and lazily compiles graphs on
// first EnsureLoaded(id).
type Registry struct {
	dir       string
	agentOpts workflow.AgentNodeOptions
	mu        sync.Mutex
	byID      map[string]*Entry
	order     []string
}

// New scans dir for workflow YAML files and builds the id -> path index.
// agentOpts is threaded through to workflow.Compile for every config
// compiled lazily afterwards.
func New(dir string, agentOpts workflow.AgentNodeOptions) (*Registry, error) {
	r := &Registry{
		dir:       dir,
		agentOpts: agentOpts,
		byID:      map[string]*Entry{},
	}
	if err := r.scan(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) scan() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return kerrors.NewConfigError("", fmt.Sprintf("scan dir %q", r.dir), err)
	}

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(r.dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			kflog.Warn("registry: skipping %q: %v", path, err)
			continue
		}
		p, err := protocol.Parse(raw)
		if err != nil {
			kflog.Warn("registry: skipping %q: parse error: %v", path, err)
			continue
		}

		id := strconv.Itoa(p.ID)
		if _, dup := r.byID[id]; dup {
			kflog.Warn("registry: duplicate config id %q at %q, keeping first", id, path)
			continue
		}
		r.byID[id] = &Entry{
			ID:     id,
			Path:   path,
			Meta:   p.Meta,
			Agents: len(p.Agents),
			Nodes:  len(p.Workflow.Nodes),
			Edges:  len(p.Workflow.Edges),
		}
		r.order = append(r.order, id)
	}

	sort.Strings(r.order)
	return nil
}

// List returns a summary row per scanned config, in id order.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		e := r.byID[id]
		out = append(out, Info{
			ID:          e.ID,
			Name:        e.Meta.Name,
			Description: e.Meta.Description,
			Version:     e.Meta.Version,
			Author:      e.Meta.Author,
			AgentsCount: e.Agents,
			NodesCount:  e.Nodes,
			EdgesCount:  e.Edges,
			Cached:      e.Compiled != nil,
		})
	}
	return out
}

// EnsureLoaded parses, validates, and compiles the config with the given
// id on first access, and is a no-op thereafter (spec.md §4.1 property 7:
// "ensure_loaded is idempotent"). Returns kerrors.ConfigError wrapping
// ErrConfig for an unknown id, a parse failure, or a validation failure.
func (r *Registry) EnsureLoaded(id string) (*workflow.Compiled, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, kerrors.NewConfigError(id, "unknown_id", nil)
	}
	if e.Compiled != nil {
		return e.Compiled, nil
	}

	raw, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, kerrors.NewConfigError(id, fmt.Sprintf("parse_error(%s)", e.Path), err)
	}
	p, err := protocol.Parse(raw)
	if err != nil {
		return nil, kerrors.NewConfigError(id, fmt.Sprintf("parse_error(%s)", e.Path), err)
	}
	if err := protocol.Validate(p); err != nil {
		return nil, kerrors.NewConfigError(id, "validation_error", err)
	}

	compiled, err := workflow.Compile(p, r.agentOpts)
	if err != nil {
		return nil, kerrors.NewConfigError(id, "compile_error", err)
	}

	e.Meta = p.Meta
	e.Compiled = compiled
	return compiled, nil
}

// Get returns the already-compiled graph for id, or false if EnsureLoaded
// hasn't been called for it yet.
func (r *Registry) Get(id string) (*workflow.Compiled, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok || e.Compiled == nil {
		return nil, false
	}
	return e.Compiled, true
}

// KnownIDs returns the scanned id set, independent of load state.
func (r *Registry) KnownIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ExtractConfigIDFromThreadID implements spec.md §4.1's suffix-match rule
// against a thread id shaped "<username>_<uuid>_<config_id>": the
// config_id itself may contain underscores, so the longest known id that
// suffix-matches the underscore-delimited tail wins; 3-part suffix is
// tried first, then 2-part, then 1-part.
func (r *Registry) ExtractConfigIDFromThreadID(threadID string) (string, bool) {
	parts := strings.Split(threadID, "_")

	for _, n := range []int{3, 2, 1} {
		if n > len(parts) {
			continue
		}
		candidate := strings.Join(parts[len(parts)-n:], "_")
		if r.isKnownID(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (r *Registry) isKnownID(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.byID[id]
	return ok
}
