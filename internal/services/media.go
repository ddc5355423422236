package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/danmuck/heritagectl/internal/heritage"
	"github.com/danmuck/heritagectl/internal/media"
	"github.com/danmuck/heritagectl/internal/store"
	"github.com/rs/zerolog/log"
)

// DefaultPruneGrace covers the window between an upload being written and
// its contribution being stored.
const DefaultPruneGrace = 10 * time.Minute

// Media reports on and prunes stored artifact files.
type Media struct {
	Files media.Store
	Store store.Store
	// Grace keeps files younger than this out of prune; zero means DefaultPruneGrace.
	Grace time.Duration
	Now   func() time.Time
}

func (m *Media) Name() string {
	return "media"
}

func (m *Media) Status(context.Context) (any, error) {
	keys, err := m.Files.List("")
	if err != nil {
		return nil, err
	}
	return map[string]any{"root": m.Files.Root(), "files": len(keys)}, nil
}

func (m *Media) Actions() map[string]Action {
	return map[string]Action{
		"list": func(context.Context) (string, error) {
			keys, err := m.Files.List("")
			if err != nil {
				return "", err
			}
			if len(keys) == 0 {
				return "", nil
			}
			return strings.Join(keys, "\n") + "\n", nil
		},
		"prune": m.prune,
	}
}

// prune deletes stored files no artifact contribution references. Files
// written within the grace window are kept: their contribution may not be
// stored yet.
func (m *Media) prune(ctx context.Context) (string, error) {
	grace := m.Grace
	if grace <= 0 {
		grace = DefaultPruneGrace
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	cutoff := now().Add(-grace)

	artifacts, err := m.Store.List(ctx, store.Query{Kind: heritage.KindArtifact})
	if err != nil {
		return "", err
	}
	referenced := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		referenced[a.File] = true
	}
	keys, err := m.Files.List("")
	if err != nil {
		return "", err
	}
	removed, young := 0, 0
	for _, key := range keys {
		if referenced[key] {
			continue
		}
		written, err := m.Files.ModTime(key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("prune %s: %w", key, err)
		}
		if written.After(cutoff) {
			young++
			continue
		}
		if err := m.Files.Delete(key); err != nil {
			return "", fmt.Errorf("prune %s: %w", key, err)
		}
		log.Info().Str("file", key).Msg("media_pruned")
		removed++
	}
	return fmt.Sprintf("removed=%d kept=%d young=%d\n", removed, len(keys)-removed, young), nil
}
