package auth

// GetPermissionModel 获取 OpenFGA 权限模型定义
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type department
  relations
    define manager: [user]
    define member: [user] or manager`
}
