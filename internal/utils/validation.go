package utils

import (
	"errors"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxIDLength 实体 ID 最大长度，与表结构 varchar(64) 一致
const MaxIDLength = 64

var (
	idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// 模板名称作为 YAML 文件名和界面选项出现，限制为可读字符
	templateNamePattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} ._-]*$`)
)

var (
	ErrEmptyID          = errors.New("id cannot be empty")
	ErrIDTooLong        = errors.New("id exceeds 64 characters")
	ErrInvalidIDFormat  = errors.New("id may only contain letters, digits, '-' and '_'")
	ErrEmptyTitle       = errors.New("title cannot be empty")
	ErrTitleTooLong     = errors.New("title is too long")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNameTooLong      = errors.New("name exceeds 128 characters")
	ErrInvalidNameChars = errors.New("name may only contain letters, digits, spaces, '.', '-' and '_'")
)

// ValidateID 路径参数中的实体 ID
func ValidateID(id string) error {
	switch {
	case id == "":
		return ErrEmptyID
	case len(id) > MaxIDLength:
		return ErrIDTooLong
	case !idPattern.MatchString(id):
		return ErrInvalidIDFormat
	}
	return nil
}

// CleanTitle 任务和里程碑标题：去掉首尾空白和控制字符，转义 HTML，按字符数限制长度
func CleanTitle(s string, maxRunes int) (string, error) {
	s = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
	if s == "" {
		return "", ErrEmptyTitle
	}
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		return "", ErrTitleTooLong
	}
	return html.EscapeString(s), nil
}

// ValidateTemplateName 模板名称
func ValidateTemplateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > 128 {
		return ErrNameTooLong
	}
	if !templateNamePattern.MatchString(name) {
		return ErrInvalidNameChars
	}
	return nil
}
