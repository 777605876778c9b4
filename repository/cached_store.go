package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cppla/aiboard/models"
	"github.com/cppla/aiboard/utils"
)

const (
	listCachePrefix       = "cache:articles:list:"
	detailCachePrefix     = "cache:articles:detail:"
	generationCachePrefix = "cache:articles:gen:"
	cacheTTL              = time.Hour
)

// CachedArticleStore caches unfiltered list pages, counts and details in redis.
// Search pages are never cached to avoid key explosion.
//
// Every cached value is keyed by a generation counter that writes bump after
// they commit. A read that started before a write stores its result under the
// old generation, where nothing looks for it again.
type CachedArticleStore struct {
	ArticleStore
	cache *utils.Cache
}

// NewCachedArticleStore decorates next. With a disabled cache it is a pass-through.
func NewCachedArticleStore(next ArticleStore, cache *utils.Cache) *CachedArticleStore {
	return &CachedArticleStore{ArticleStore: next, cache: cache}
}

func listGenerationKey() string {
	return generationCachePrefix + "list"
}

func detailGenerationKey(id uint) string {
	return fmt.Sprintf("%sdetail:%d", generationCachePrefix, id)
}

func listKey(gen int64, suffix string) string {
	return fmt.Sprintf("%sgen=%d:%s", listCachePrefix, gen, suffix)
}

func detailKey(id uint, gen int64) string {
	return fmt.Sprintf("%s%d:gen=%d", detailCachePrefix, id, gen)
}

// List implements ArticleStore.
func (s *CachedArticleStore) List(ctx context.Context, pageIndex int) ([]models.Article, error) {
	gen, ok := s.cache.Counter(ctx, listGenerationKey())
	if !ok {
		return s.ArticleStore.List(ctx, pageIndex)
	}
	key := listKey(gen, fmt.Sprintf("page=%d", pageIndex))
	var cached []models.Article
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	articles, err := s.ArticleStore.List(ctx, pageIndex)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, key, articles, cacheTTL)
	return articles, nil
}

// Count implements ArticleStore.
func (s *CachedArticleStore) Count(ctx context.Context, field SearchField, query string) (int64, error) {
	if field != "" && query != "" {
		return s.ArticleStore.Count(ctx, field, query)
	}
	gen, ok := s.cache.Counter(ctx, listGenerationKey())
	if !ok {
		return s.ArticleStore.Count(ctx, field, query)
	}
	key := listKey(gen, "count")
	var total int64
	if s.cache.GetJSON(ctx, key, &total) {
		return total, nil
	}
	total, err := s.ArticleStore.Count(ctx, field, query)
	if err != nil {
		return 0, err
	}
	s.cache.SetJSON(ctx, key, total, cacheTTL)
	return total, nil
}

// GetByID implements ArticleStore. Password hashes never leave the store through the cache.
func (s *CachedArticleStore) GetByID(ctx context.Context, id uint) (*models.Article, error) {
	gen, ok := s.cache.Counter(ctx, detailGenerationKey(id))
	if !ok {
		return s.ArticleStore.GetByID(ctx, id)
	}
	var cached models.Article
	if s.cache.GetJSON(ctx, detailKey(id, gen), &cached) {
		return &cached, nil
	}
	article, err := s.ArticleStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, detailKey(id, gen), article, cacheTTL)
	return article, nil
}

// Create implements ArticleStore.
func (s *CachedArticleStore) Create(ctx context.Context, article *models.Article) (*models.Article, error) {
	created, err := s.ArticleStore.Create(ctx, article)
	if err != nil {
		return nil, err
	}
	s.invalidateLists(ctx)
	return created, nil
}

// Update implements ArticleStore.
func (s *CachedArticleStore) Update(ctx context.Context, article *models.Article) (int64, error) {
	n, err := s.ArticleStore.Update(ctx, article)
	if err == nil && n > 0 {
		s.invalidate(ctx, article.ID)
	}
	return n, err
}

// Delete implements ArticleStore.
func (s *CachedArticleStore) Delete(ctx context.Context, id uint, password string) (int64, error) {
	n, err := s.ArticleStore.Delete(ctx, id, password)
	if err == nil && n > 0 {
		s.invalidate(ctx, id)
	}
	return n, err
}

// invalidateLists moves list reads to a new generation, then drops the old pages.
func (s *CachedArticleStore) invalidateLists(ctx context.Context) {
	s.cache.Incr(ctx, listGenerationKey())
	s.cache.InvalidateByPrefix(ctx, listCachePrefix)
}

func (s *CachedArticleStore) invalidate(ctx context.Context, id uint) {
	s.invalidateLists(ctx)
	s.cache.Incr(ctx, detailGenerationKey(id))
	s.cache.InvalidateByPrefix(ctx, fmt.Sprintf("%s%d:", detailCachePrefix, id))
}
