package models

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/cppla/aiboard/utils"
)

func TestArticle_ColumnsHoldLongestInput(t *testing.T) {
	s, err := schema.Parse(&Article{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	// every character of the title expands to its widest entity
	for _, ch := range []string{`"`, `'`, "&", "<", ">"} {
		encoded := utils.EncodeHTML(strings.Repeat(ch, TitleMaxLength))
		require.LessOrEqual(t, utf8.RuneCountInString(encoded), s.LookUpField("Title").Size, "title of %q", ch)
	}
	require.Equal(t, NameMaxLength, s.LookUpField("Name").Size)
}

func TestArticle_BeforeSaveClearsSizeWithoutFile(t *testing.T) {
	a := &Article{FileSize: 42}
	require.NoError(t, a.BeforeSave(nil))
	require.Zero(t, a.FileSize)
	require.False(t, a.HasAttachment())

	a = &Article{FileName: "x.txt", FileSize: 3}
	require.NoError(t, a.BeforeSave(nil))
	require.EqualValues(t, 3, a.FileSize)
	require.True(t, a.HasAttachment())
}
