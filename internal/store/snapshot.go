package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mkessler/quern/internal/protocol"
)

// markdownLink matches the target of an inline markdown link, excluding
// anchors and query strings.
var markdownLink = regexp.MustCompile(`\[[^\]]*\]\(([^)#?\s]+)\)`)

// Snapshot is an immutable copy of the store contents handed to workers in
// lieu of live references.
type Snapshot struct {
	FileContents map[string]string
	LinkGraph    map[string][]string
	Digest       string
	TakenAt      time.Time
}

// Builder reads the whole store into snapshots and caches the result until
// Invalidate is called.
type Builder struct {
	store  ContentStore
	logger *slog.Logger

	mu     sync.Mutex
	cached *Snapshot
}

func NewBuilder(store ContentStore, logger *slog.Logger) *Builder {
	return &Builder{
		store:  store,
		logger: logger.With("component", "snapshot"),
	}
}

// Invalidate drops the cached snapshot so the next build rereads the store.
func (b *Builder) Invalidate() {
	b.mu.Lock()
	b.cached = nil
	b.mu.Unlock()
}

// Build returns the cached snapshot or reads the store to produce one.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cached != nil {
		return b.cached, nil
	}

	paths, err := b.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("snapshot list: %w", err)
	}

	contents := make(map[string]string, len(paths))
	for _, p := range paths {
		text, err := b.store.Read(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("snapshot read: %w", err)
		}
		contents[p] = text
	}

	snap := &Snapshot{
		FileContents: contents,
		LinkGraph:    extractLinkGraph(contents),
		Digest:       digest(contents),
		TakenAt:      time.Now(),
	}
	b.cached = snap
	b.logger.Debug("snapshot built", "files", len(contents), "digest", snap.Digest)
	return snap, nil
}

// TaskContext builds the worker-boundary context from the current snapshot.
func (b *Builder) TaskContext(ctx context.Context) (*protocol.TaskContext, error) {
	snap, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	return &protocol.TaskContext{
		FileContents: snap.FileContents,
		LinkGraph:    snap.LinkGraph,
		Metadata: map[string]string{
			"digest":     snap.Digest,
			"file_count": strconv.Itoa(len(snap.FileContents)),
		},
	}, nil
}

// extractLinkGraph resolves markdown link targets relative to each source
// file and keeps only targets present in the snapshot.
func extractLinkGraph(contents map[string]string) map[string][]string {
	graph := make(map[string][]string, len(contents))
	for src, text := range contents {
		seen := map[string]bool{}
		var links []string
		for _, match := range markdownLink.FindAllStringSubmatch(text, -1) {
			target := match[1]
			if target == "" || path.IsAbs(target) {
				continue
			}
			resolved := path.Clean(path.Join(path.Dir(src), target))
			if resolved == src || seen[resolved] {
				continue
			}
			if _, ok := contents[resolved]; !ok {
				continue
			}
			seen[resolved] = true
			links = append(links, resolved)
		}
		graph[src] = links
	}
	return graph
}

// digest hashes paths and contents in a stable order.
func digest(contents map[string]string) string {
	paths := make([]string, 0, len(contents))
	for p := range contents {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := blake3.New()
	for _, p := range paths {
		_, _ = h.WriteString(p)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(contents[p])
		_, _ = h.WriteString("\x00")
	}
	return hex.EncodeToString(h.Sum(nil))
}
