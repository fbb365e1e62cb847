package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

// I18nManager 错误和提示文案，按语言基础标签（en、zh）存放
type I18nManager struct {
	messages map[string]map[string]string
}

// 第一项是协商失败时的默认语言
var languageMatcher = language.NewMatcher([]language.Tag{language.English, language.Chinese})

var defaultI18nManager *I18nManager

func init() {
	defaultI18nManager = NewI18nManager()
	defaultI18nManager.LoadMessages("en", map[string]string{
		"error.validation":           "Invalid input",
		"error.not_found":            "Resource not found",
		"error.unauthorized":         "Unauthorized",
		"error.forbidden":            "Access to this booking is denied",
		"error.integrity":            "Parent record is missing, progress was not recalculated",
		"error.concurrency_conflict": "Progress changed concurrently, please retry",
		"error.bad_request":          "Bad request",
		"error.internal_error":       "Internal server error",
		"success.created":            "Created successfully",
		"success.updated":            "Updated successfully",
		"success.deleted":            "Deleted successfully",
	})
	defaultI18nManager.LoadMessages("zh", map[string]string{
		"error.validation":           "输入不合法",
		"error.not_found":            "资源未找到",
		"error.unauthorized":         "未授权",
		"error.forbidden":            "无权访问该预订",
		"error.integrity":            "上级记录缺失，进度未重算",
		"error.concurrency_conflict": "进度被并发修改，请重试",
		"error.bad_request":          "请求错误",
		"error.internal_error":       "服务器内部错误",
		"success.created":            "创建成功",
		"success.updated":            "更新成功",
		"success.deleted":            "删除成功",
	})
}

// NewI18nManager 创建国际化管理器
func NewI18nManager() *I18nManager {
	return &I18nManager{messages: make(map[string]map[string]string)}
}

// LoadMessages 加载一种语言的文案
func (m *I18nManager) LoadMessages(lang string, messages map[string]string) {
	m.messages[lang] = messages
}

// Translate 缺失的文案依次退回英文和 key 本身
func (m *I18nManager) Translate(lang, key string) string {
	for _, l := range []string{lang, "en"} {
		if msg, ok := m.messages[l][key]; ok {
			return msg
		}
	}
	return key
}

// I18nMiddleware ?lang= 优先于 Accept-Language
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("language", negotiateLanguage(c.Query("lang"), c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// GetLanguage 从上下文获取语言
func GetLanguage(c *gin.Context) string {
	if lang := c.GetString("language"); lang != "" {
		return lang
	}
	return "en"
}

// T 用默认文案表翻译
func T(c *gin.Context, key string) string {
	return defaultI18nManager.Translate(GetLanguage(c), key)
}

// negotiateLanguage 参数按 Accept-Language 语法解析，不支持的语言退回 en
func negotiateLanguage(prefs ...string) string {
	tag, _ := language.MatchStrings(languageMatcher, prefs...)
	base, _ := tag.Base()
	return base.String()
}
