package auth

// GetPermissionModel OpenFGA 授权模型（DSL）
//
// 客户与服务方由 WriteBookingParticipants 写入，管理员在鉴权器中直接放行。
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type booking
  relations
    define client: [user]
    define provider: [user]
    define admin: [user]
    define editor: provider or admin
    define viewer: client or editor`
}
