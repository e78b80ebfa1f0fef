package crawler

import (
	"context"
	"fmt"
	"sort"

	"github.com/masahif/steamharvest/internal/catalog"
)

// persist writes one app with its links, achievements and reviews, and
// marks ledgerID as success, in a single unit of work
func (c *Crawler) persist(ctx context.Context, ledgerID int64, rec *catalog.Record,
	achievements []catalog.Achievement, reviews []catalog.Review) error {
	return c.store.WithTx(ctx, func(tx Tx) error {
		app := rec.App
		app.ParentID = 0

		deferred := false
		if rec.ParentID != 0 && rec.ParentID != app.ID {
			exists, err := tx.AppExists(ctx, rec.ParentID)
			if err != nil {
				return err
			}
			if exists {
				app.ParentID = rec.ParentID
			} else {
				deferred = true
			}
		}

		if err := tx.UpsertApp(ctx, &app); err != nil {
			return err
		}
		if deferred {
			if err := tx.RecordDeferredLink(ctx, app.ID, rec.ParentID); err != nil {
				return err
			}
		}

		for _, dim := range catalog.Dimensions() {
			links, err := resolveLinks(ctx, tx, dim, rec)
			if err != nil {
				return err
			}
			if err := tx.LinkEntities(ctx, app.ID, dim, links); err != nil {
				return err
			}
		}

		if err := tx.UpsertAchievements(ctx, achievements); err != nil {
			return err
		}
		if err := tx.UpsertReviews(ctx, app.ID, reviews); err != nil {
			return err
		}

		return tx.MarkProcessed(ctx, ledgerID, catalog.StatusSuccess)
	})
}

// resolveLinks maps the names of one dimension to lookup ids
func resolveLinks(ctx context.Context, tx Tx, dim catalog.Dimension, rec *catalog.Record) ([]catalog.Link, error) {
	var names []string
	if dim == catalog.DimTag {
		names = make([]string, 0, len(rec.Tags))
		for name := range rec.Tags {
			names = append(names, name)
		}
	} else {
		names = append(names, rec.Names[dim]...)
	}
	// Concurrent units take lookup rows in the same order
	sort.Strings(names)

	links := make([]catalog.Link, 0, len(names))
	for _, name := range names {
		id, err := tx.LookupID(ctx, dim, name)
		if err != nil {
			return nil, fmt.Errorf("lookup %s %q: %w", dim, name, err)
		}
		link := catalog.Link{EntityID: id}
		switch dim {
		case catalog.DimLanguage:
			link.FullAudio = rec.FullAudio[name]
		case catalog.DimTag:
			link.Votes = rec.Tags[name]
		}
		links = append(links, link)
	}
	return links, nil
}
