package models

import (
	"time"

	"gorm.io/gorm"
)

// Limits on submitted text. The title is stored HTML-encoded, and encoding
// grows one character to at most five ("&#34;"), so its column is five times wider.
const (
	TitleMaxLength = 255
	NameMaxLength  = 64
)

// Article is a board post with an optional single attachment.
type Article struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:1275;not null" json:"title"` // HTML-encoded
	Name      string    `gorm:"size:64;not null;index" json:"name"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Password  string    `gorm:"size:255;not null" json:"-"` // bcrypt hash
	FileName  string    `gorm:"size:255;index" json:"file_name"`
	FileSize  int64     `gorm:"not null;default:0" json:"file_size"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAttachment reports whether the article references an uploaded file.
func (a *Article) HasAttachment() bool {
	return a.FileName != ""
}

// BeforeSave keeps the file size consistent with the file name.
func (a *Article) BeforeSave(tx *gorm.DB) error {
	if a.FileName == "" || a.FileSize < 0 {
		a.FileSize = 0
	}
	return nil
}
