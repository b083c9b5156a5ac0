package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openprofile/factpod-gateway/storage"
)

// ============================================================
// CategoryStore Implementation
// ============================================================

// ListCategories returns one page of the category listing.
//
// The sorted-set index is walked with ZRANGEBYLEX using the decoded page
// token as an exclusive lower bound, then the category records are fetched
// with a single MGET. Lex ranges are deterministic over reference data, so
// successive pages cover every member exactly once.
func (s *Store) ListCategories(ctx context.Context, pageToken string) (*storage.CategoryPage, error) {
	after, err := storage.DecodePageToken(pageToken)
	if err != nil {
		return nil, storage.NewRepositoryError("list", "category", err)
	}

	min := "-"
	if after != "" {
		min = "(" + after
	}

	// Fetch one extra member to know whether another page exists.
	names, err := s.client.Do(ctx,
		s.client.B().Zrangebylex().Key(s.categoryIndexKey()).
			Min(min).Max("+").
			Limit(0, int64(s.pageSize)+1).
			Build(),
	).AsStrSlice()
	if err != nil {
		return nil, storage.NewRepositoryError("list", "category", err)
	}

	hasMore := len(names) > s.pageSize
	if hasMore {
		names = names[:s.pageSize]
	}

	page := &storage.CategoryPage{Items: make([]storage.Category, 0, len(names))}
	if len(names) == 0 {
		return page, nil
	}

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = s.categoryKey(name)
	}

	records, err := s.client.Do(ctx, s.client.B().Mget().Key(keys...).Build()).ToArray()
	if err != nil {
		return nil, storage.NewRepositoryError("list", "category", err)
	}

	for i, record := range records {
		data, err := record.ToString()
		if err != nil {
			if isNilError(err) {
				// Index member without a record; repair happens on reseed.
				s.logger.Warn("Category index entry has no record", "name", names[i])
				continue
			}
			return nil, storage.NewRepositoryError("list", "category", err)
		}

		var j categoryJSON
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			return nil, storage.NewRepositoryError("list", "category", fmt.Errorf("failed to unmarshal category %s: %w", names[i], err))
		}
		page.Items = append(page.Items, *fromCategoryJSON(&j))
	}

	if hasMore {
		page.NextPageToken = storage.EncodePageToken(names[len(names)-1])
	}

	return page, nil
}

// SeedCategories replaces the category reference data. The previous index is
// dropped first so removed categories do not linger.
func (s *Store) SeedCategories(ctx context.Context, categories []storage.Category) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.categoryIndexKey()).Build()).Error(); err != nil {
		return storage.NewRepositoryError("seed", "category", err)
	}

	for i := range categories {
		c := &categories[i]
		if c.Name == "" {
			return storage.NewRepositoryError("seed", "category", fmt.Errorf("category name is required"))
		}

		data, err := json.Marshal(toCategoryJSON(c))
		if err != nil {
			return storage.NewRepositoryError("seed", "category", fmt.Errorf("failed to marshal category %s: %w", c.Name, err))
		}

		if err := s.client.Do(ctx, s.client.B().Set().Key(s.categoryKey(c.Name)).Value(string(data)).Build()).Error(); err != nil {
			return storage.NewRepositoryError("seed", "category", err)
		}

		// All members score 0 so ZRANGEBYLEX orders purely by name.
		if err := s.client.Do(ctx,
			s.client.B().Zadd().Key(s.categoryIndexKey()).ScoreMember().ScoreMember(0, c.Name).Build(),
		).Error(); err != nil {
			return storage.NewRepositoryError("seed", "category", err)
		}
	}

	s.logger.Info("Seeded category reference data", "count", len(categories))
	return nil
}
