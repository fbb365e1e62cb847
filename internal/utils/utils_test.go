package utils_test

import (
	"strings"
	"testing"

	"github.com/AbuAli85/business-services-hub-sub014/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateID 测试 ID 格式校验
func TestValidateID(t *testing.T) {
	assert.NoError(t, utils.ValidateID("8d0c7a1e-2f7b-4c5e-9a8f-0b6c1d2e3f40"))
	assert.Equal(t, utils.ErrEmptyID, utils.ValidateID(""))
	assert.Equal(t, utils.ErrInvalidIDFormat, utils.ValidateID("a'; DROP TABLE tasks"))
	assert.Equal(t, utils.ErrIDTooLong, utils.ValidateID(strings.Repeat("a", 65)))
}

// TestCleanTitle 测试标题清理
func TestCleanTitle(t *testing.T) {
	got, err := utils.CleanTitle("  Design review\x00  ", 255)
	require.NoError(t, err)
	assert.Equal(t, "Design review", got)

	got, err = utils.CleanTitle("<b>x</b>", 255)
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;x&lt;/b&gt;", got)

	// 按字符而不是字节计数
	got, err = utils.CleanTitle("设计评审", 4)
	require.NoError(t, err)
	assert.Equal(t, "设计评审", got)

	_, err = utils.CleanTitle("  \t ", 255)
	assert.Equal(t, utils.ErrEmptyTitle, err)
	_, err = utils.CleanTitle("abcdef", 3)
	assert.Equal(t, utils.ErrTitleTooLong, err)
}

// TestValidateTemplateName 测试模板名称校验
func TestValidateTemplateName(t *testing.T) {
	assert.NoError(t, utils.ValidateTemplateName("Website build v2.1"))
	assert.NoError(t, utils.ValidateTemplateName("网站交付"))
	assert.Equal(t, utils.ErrInvalidNameChars, utils.ValidateTemplateName("<script>alert(1)</script>"))
	assert.Equal(t, utils.ErrInvalidNameChars, utils.ValidateTemplateName("-leading-dash"))
	assert.Equal(t, utils.ErrEmptyName, utils.ValidateTemplateName(" "))
	assert.Equal(t, utils.ErrNameTooLong, utils.ValidateTemplateName(strings.Repeat("a", 129)))
}

// TestSortSafety 测试排序参数白名单
func TestSortSafety(t *testing.T) {
	allowed := []string{"created_at", "due_date"}
	assert.NoError(t, utils.ValidateSortField("due_date", allowed))
	assert.Error(t, utils.ValidateSortField("due_date; DROP TABLE tasks", allowed))
	assert.Error(t, utils.ValidateSortField("", allowed))
	assert.Equal(t, "ASC", utils.SanitizeSortOrder(" asc "))
	assert.Equal(t, "DESC", utils.SanitizeSortOrder("sideways"))
}
