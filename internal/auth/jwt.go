package auth

import (
	"crypto/subtle"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wfunc/autopbw/internal/config"
	"github.com/wfunc/autopbw/internal/errors"
)

const issuer = "autopbw"

// Claims 操作员令牌
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Manager 用API密钥换取访问令牌，并校验令牌
type Manager struct {
	secret []byte
	apiKey string
	expiry time.Duration
	now    func() time.Time
}

// NewManager 根据配置创建，未配置API密钥时返回nil表示不启用认证
func NewManager(cfg config.JWTConfig) (*Manager, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	if cfg.Secret == "" {
		return nil, errors.New(errors.ErrConfigMissing, "security.jwt.secret is required when api_key is set")
	}
	expiry := time.Duration(cfg.ExpireHours) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Manager{
		secret: []byte(cfg.Secret),
		apiKey: cfg.APIKey,
		expiry: expiry,
		now:    time.Now,
	}, nil
}

// Login 校验API密钥并签发令牌
func (m *Manager) Login(apiKey, operator string) (string, time.Time, error) {
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.apiKey)) != 1 {
		return "", time.Time{}, errors.New(errors.ErrAuthentication, "invalid api key")
	}
	if operator == "" {
		operator = "operator"
	}
	return m.GenerateToken(operator)
}

// GenerateToken 签发访问令牌
func (m *Manager) GenerateToken(operator string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.expiry)
	claims := &Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   operator,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.ErrUnknown, "sign token")
	}
	return token, expiresAt, nil
}

// ValidateToken 校验令牌
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.ErrTokenInvalid, "unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New(errors.ErrTokenExpired, err.Error())
		}
		return nil, errors.New(errors.ErrTokenInvalid, err.Error())
	}
	if !token.Valid {
		return nil, errors.New(errors.ErrTokenInvalid)
	}
	return claims, nil
}
