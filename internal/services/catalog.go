package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/heritagectl/internal/heritage"
	"github.com/danmuck/heritagectl/internal/store"
)

// Catalog reports on stored contributions.
type Catalog struct {
	Store store.Store
}

func (c *Catalog) Name() string {
	return "catalog"
}

func (c *Catalog) Status(ctx context.Context) (any, error) {
	return c.Store.Count(ctx)
}

func (c *Catalog) Actions() map[string]Action {
	return map[string]Action{
		"count": func(ctx context.Context) (string, error) {
			counts, err := c.Store.Count(ctx)
			if err != nil {
				return "", err
			}
			var b strings.Builder
			for _, k := range heritage.Kinds() {
				fmt.Fprintf(&b, "%s=%d\n", k, counts[k])
			}
			return b.String(), nil
		},
		"recent": func(ctx context.Context) (string, error) {
			items, err := c.Store.Recent(ctx, store.DefaultRecent)
			if err != nil {
				return "", err
			}
			var b strings.Builder
			for _, item := range items {
				fmt.Fprintf(&b, "%s %s\n", item.Date, heritage.Heading(item))
			}
			return b.String(), nil
		},
	}
}
