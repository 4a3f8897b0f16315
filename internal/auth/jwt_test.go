package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/autopbw/internal/config"
	"github.com/wfunc/autopbw/internal/errors"
)

// ManagerTestSuite 令牌管理测试套件
type ManagerTestSuite struct {
	suite.Suite
	manager *Manager
}

func (s *ManagerTestSuite) SetupTest() {
	m, err := NewManager(config.JWTConfig{Secret: "test-secret", ExpireHours: 1, APIKey: "key-123"})
	s.Require().NoError(err)
	s.Require().NotNil(m)
	s.manager = m
}

func (s *ManagerTestSuite) TestDisabledWithoutAPIKey() {
	m, err := NewManager(config.JWTConfig{Secret: "x"})
	s.NoError(err)
	s.Nil(m)
}

func (s *ManagerTestSuite) TestSecretRequired() {
	_, err := NewManager(config.JWTConfig{APIKey: "k"})
	s.True(errors.Is(err, errors.ErrConfigMissing))
}

func (s *ManagerTestSuite) TestLoginAndValidate() {
	token, expires, err := s.manager.Login("key-123", "alice")
	s.Require().NoError(err)
	s.NotEmpty(token)
	s.WithinDuration(time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := s.manager.ValidateToken(token)
	s.Require().NoError(err)
	s.Equal("alice", claims.Operator)
	s.Equal("alice", claims.Subject)
}

func (s *ManagerTestSuite) TestLoginDefaultOperator() {
	token, _, err := s.manager.Login("key-123", "")
	s.Require().NoError(err)
	claims, err := s.manager.ValidateToken(token)
	s.Require().NoError(err)
	s.Equal("operator", claims.Operator)
}

func (s *ManagerTestSuite) TestWrongAPIKey() {
	_, _, err := s.manager.Login("nope", "alice")
	s.True(errors.Is(err, errors.ErrAuthentication))
}

func (s *ManagerTestSuite) TestExpiredToken() {
	s.manager.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := s.manager.GenerateToken("alice")
	s.Require().NoError(err)

	s.manager.now = time.Now
	_, err = s.manager.ValidateToken(token)
	s.True(errors.Is(err, errors.ErrTokenExpired))
}

func (s *ManagerTestSuite) TestForeignSecret() {
	other, err := NewManager(config.JWTConfig{Secret: "other", ExpireHours: 1, APIKey: "key-123"})
	s.Require().NoError(err)
	token, _, err := other.GenerateToken("mallory")
	s.Require().NoError(err)

	_, err = s.manager.ValidateToken(token)
	s.True(errors.Is(err, errors.ErrTokenInvalid))

	_, err = s.manager.ValidateToken("not-a-token")
	s.True(errors.Is(err, errors.ErrTokenInvalid))
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
