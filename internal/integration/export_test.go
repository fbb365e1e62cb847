package integration

import "gorm.io/gorm"

// SetBeforeProgressWrite 测试用，在写入缓存进度前注入操作
func (r *Recalculator) SetBeforeProgressWrite(fn func(tx *gorm.DB, entity string)) {
	r.beforeProgressWrite = fn
}
