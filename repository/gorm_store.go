package repository

import (
	"context"

	"github.com/Laisky/errors/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/cppla/aiboard/models"
	"github.com/cppla/aiboard/utils"
)

// GormArticleStore is the gorm-backed ArticleStore. Passwords are kept as bcrypt hashes.
type GormArticleStore struct {
	db       *gorm.DB
	hashCost int
}

// GormOption configures a GormArticleStore.
type GormOption func(*GormArticleStore)

// WithHashCost overrides the bcrypt cost used for new passwords.
func WithHashCost(cost int) GormOption {
	return func(s *GormArticleStore) {
		s.hashCost = cost
	}
}

// NewGormArticleStore wraps db.
func NewGormArticleStore(db *gorm.DB, opts ...GormOption) *GormArticleStore {
	s := &GormArticleStore{db: db, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates the articles table.
func (s *GormArticleStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.Article{})
}

func (s *GormArticleStore) newestFirst(ctx context.Context, pageIndex int) *gorm.DB {
	return s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset(pageOffset(pageIndex)).
		Limit(PageSize)
}

// List implements ArticleStore.
func (s *GormArticleStore) List(ctx context.Context, pageIndex int) ([]models.Article, error) {
	articles := []models.Article{}
	if err := s.newestFirst(ctx, pageIndex).Find(&articles).Error; err != nil {
		return nil, errors.Wrapf(err, "list articles page %d", pageIndex)
	}
	return articles, nil
}

// Search implements ArticleStore.
func (s *GormArticleStore) Search(ctx context.Context, pageIndex int, field SearchField, query string) ([]models.Article, error) {
	col, err := field.column()
	if err != nil {
		return nil, err
	}
	articles := []models.Article{}
	if err := s.newestFirst(ctx, pageIndex).
		Where(col+" LIKE ? ESCAPE '"+likeEscapeChar+"'", likePattern(query)).
		Find(&articles).Error; err != nil {
		return nil, errors.Wrapf(err, "search articles %s=%q page %d", field, query, pageIndex)
	}
	return articles, nil
}

// Count implements ArticleStore.
func (s *GormArticleStore) Count(ctx context.Context, field SearchField, query string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Article{})
	if field != "" && query != "" {
		col, err := field.column()
		if err != nil {
			return 0, err
		}
		q = q.Where(col+" LIKE ? ESCAPE '"+likeEscapeChar+"'", likePattern(query))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, errors.Wrap(err, "count articles")
	}
	return total, nil
}

// GetByID implements ArticleStore.
func (s *GormArticleStore) GetByID(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	if err := s.db.WithContext(ctx).First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "id %d", id)
		}
		return nil, errors.Wrapf(err, "get article %d", id)
	}
	return &article, nil
}

// Create implements ArticleStore. The submitted password is hashed before insert.
func (s *GormArticleStore) Create(ctx context.Context, article *models.Article) (*models.Article, error) {
	if article == nil {
		return nil, errors.New("nil article")
	}
	hash, err := utils.HashPasswordWithCost(article.Password, s.hashCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	row := *article
	row.ID = 0
	row.Password = hash
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, errors.Wrap(err, "create article")
	}
	return &row, nil
}

// Update implements ArticleStore. ID, Password and CreatedAt are never changed.
func (s *GormArticleStore) Update(ctx context.Context, article *models.Article) (int64, error) {
	if article == nil {
		return 0, errors.New("nil article")
	}
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, ok, err := loadWithPassword(tx, article.ID, article.Password)
		if err != nil || !ok {
			return err
		}
		existing.Title = article.Title
		existing.Name = article.Name
		existing.Content = article.Content
		existing.FileName = article.FileName
		existing.FileSize = article.FileSize
		res := tx.Save(existing)
		if res.Error != nil {
			return res.Error
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "update article %d", article.ID)
	}
	return affected, nil
}

// Delete implements ArticleStore.
func (s *GormArticleStore) Delete(ctx context.Context, id uint, password string) (int64, error) {
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, ok, err := loadWithPassword(tx, id, password)
		if err != nil || !ok {
			return err
		}
		res := tx.Delete(&models.Article{}, id)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, errors.Wrapf(err, "delete article %d", id)
	}
	return affected, nil
}

// AttachmentInUse reports whether any article references the file name.
func (s *GormArticleStore) AttachmentInUse(ctx context.Context, name string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Article{}).Where("file_name = ?", name).Count(&n).Error; err != nil {
		return false, errors.Wrapf(err, "count references to %s", name)
	}
	return n > 0, nil
}

// loadWithPassword returns ok=false without error when the id is missing or the password differs.
func loadWithPassword(tx *gorm.DB, id uint, password string) (*models.Article, bool, error) {
	var existing models.Article
	if err := tx.First(&existing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !utils.CheckPassword(existing.Password, password) {
		return nil, false, nil
	}
	return &existing, true, nil
}
