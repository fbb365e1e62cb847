package utils

import (
	"fmt"
	"strings"
)

// ValidateSortField 排序字段只允许白名单中的列，防止 SQL 注入
func ValidateSortField(field string, allowed []string) error {
	if field == "" {
		return fmt.Errorf("sort field cannot be empty")
	}
	for _, a := range allowed {
		if field == a {
			return nil
		}
	}
	return fmt.Errorf("sort field %q is not allowed", field)
}

// SanitizeSortOrder 规范排序方向，默认降序
func SanitizeSortOrder(order string) string {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder == "ASC" || upperOrder == "DESC" {
		return upperOrder
	}
	return "DESC"
}
