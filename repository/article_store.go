// Package repository persists board articles.
package repository

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/cppla/aiboard/models"
)

// PageSize is the fixed number of articles per page.
const PageSize = 10

var (
	// ErrNotFound is returned when no article has the requested id.
	ErrNotFound = errors.New("article not found")
	// ErrInvalidSearchField is returned for a field outside Name, Title, Content.
	ErrInvalidSearchField = errors.New("invalid search field")
)

// SearchField is the single column a search query is matched against.
type SearchField string

const (
	SearchByName    SearchField = "Name"
	SearchByTitle   SearchField = "Title"
	SearchByContent SearchField = "Content"
)

// ParseSearchField accepts Name, Title or Content in any letter case.
func ParseSearchField(s string) (SearchField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "name":
		return SearchByName, nil
	case "title":
		return SearchByTitle, nil
	case "content":
		return SearchByContent, nil
	}
	return "", errors.Wrapf(ErrInvalidSearchField, "%q", s)
}

func (f SearchField) column() (string, error) {
	switch f {
	case SearchByName:
		return "name", nil
	case SearchByTitle:
		return "title", nil
	case SearchByContent:
		return "content", nil
	}
	return "", errors.Wrapf(ErrInvalidSearchField, "%q", string(f))
}

// ArticleStore is the persistence contract the board depends on.
//
// Update and Delete verify the password against the stored one and report
// zero affected rows, not an error, on mismatch.
type ArticleStore interface {
	// List returns page pageIndex (zero-based) newest first. Past the last page it returns an empty slice.
	List(ctx context.Context, pageIndex int) ([]models.Article, error)
	// Search is List restricted to articles whose field contains query.
	Search(ctx context.Context, pageIndex int, field SearchField, query string) ([]models.Article, error)
	// Count returns the number of articles matching field/query, or all articles when either is empty.
	Count(ctx context.Context, field SearchField, query string) (int64, error)
	GetByID(ctx context.Context, id uint) (*models.Article, error)
	Create(ctx context.Context, article *models.Article) (*models.Article, error)
	Update(ctx context.Context, article *models.Article) (int64, error)
	Delete(ctx context.Context, id uint, password string) (int64, error)
}

func pageOffset(pageIndex int) int {
	if pageIndex < 0 {
		pageIndex = 0
	}
	return pageIndex * PageSize
}

// likeEscapeChar works unchanged in both MySQL and SQLite string literals.
const likeEscapeChar = "!"

var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}
