package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// Claims HRIS JWT 声明
type Claims struct {
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Departments []string `json:"departments,omitempty"` // 部门经理管理的部门
	jwt.RegisteredClaims
}

// Principal 转换为工作流调用者
func (c *Claims) Principal() workflow.Principal {
	return workflow.Principal{
		UserID:             c.Subject,
		Name:               c.Name,
		SuperAdmin:         slices.Contains(c.Roles, string(workflow.RoleSuperAdmin)),
		HrdManager:         slices.Contains(c.Roles, string(workflow.RoleHrdManager)),
		DepartmentManager:  slices.Contains(c.Roles, string(workflow.RoleDepartmentManager)),
		ManagedDepartments: append([]string(nil), c.Departments...),
	}
}

// TokenValidator HS256 Token 签发与验证
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator 创建 Token 验证器
func NewTokenValidator(secret, issuer string) (*TokenValidator, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &TokenValidator{secret: []byte(secret), issuer: issuer}, nil
}

// Issuer 返回 Issuer
func (v *TokenValidator) Issuer() string {
	return v.issuer
}

// Issue 签发 Token
func (v *TokenValidator) Issue(p workflow.Principal, ttl time.Duration) (string, error) {
	if p.UserID == "" {
		return "", errors.New("user id is required")
	}
	roles := make([]string, 0, 3)
	for _, r := range p.Roles() {
		roles = append(roles, string(r))
	}
	now := time.Now()
	claims := &Claims{
		Name:        p.Name,
		Roles:       roles,
		Departments: p.ManagedDepartments,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken 验证 Token 签名、签发方和有效期
func (v *TokenValidator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// ParseUnverified 读取 Token 声明但不校验签名
// 仅供命令行客户端决定可选操作,服务端始终用 ValidateToken
func ParseUnverified(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
