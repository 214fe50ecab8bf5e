package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://keycloak.example.com/realms/mes"

// newJWKSServer 启动返回单个 RSA 公钥的 JWKS 服务
func newJWKSServer(t *testing.T, kid string, key *rsa.PublicKey) *httptest.Server {
	body, err := json.Marshal(map[string]interface{}{
		"keys": []map[string]string{{
			"kid": kid,
			"kty": "RSA",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":                "user-001",
		"iss":                testIssuer,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"email":              "op@example.com",
		"preferred_username": "operator1",
		"realm_access":       map[string]interface{}{"roles": []string{"operator"}},
		"resource_access": map[string]interface{}{
			"mes-api": map[string]interface{}{"roles": []string{"supervisor"}},
			"other":   map[string]interface{}{"roles": []string{"admin"}},
		},
	}
}

// TestKeycloakTokenValidator_New 测试创建验证器
func TestKeycloakTokenValidator_New(t *testing.T) {
	validator := auth.NewKeycloakTokenValidator(testIssuer, "", "mes-api")
	assert.Equal(t, testIssuer, validator.Issuer())
	assert.Equal(t, "mes-api", validator.ClientID())
}

// TestKeycloakTokenValidator_ValidateToken 测试 Token 验证
func TestKeycloakTokenValidator_ValidateToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKSServer(t, "kid-1", &key.PublicKey)
	validator := auth.NewKeycloakTokenValidator(testIssuer, server.URL, "mes-api")

	t.Run("有效 token", func(t *testing.T) {
		claims, err := validator.ValidateToken(signToken(t, key, "kid-1", validClaims()))
		require.NoError(t, err)
		user := claims.User("mes-api")
		assert.Equal(t, "user-001", user.ID)
		assert.Equal(t, "operator1", user.Username)
		assert.Equal(t, []string{"operator", "supervisor"}, user.Roles)
	})

	t.Run("签发者不匹配", func(t *testing.T) {
		claims := validClaims()
		claims["iss"] = "https://evil.example.com"
		_, err := validator.ValidateToken(signToken(t, key, "kid-1", claims))
		assert.Error(t, err)
	})

	t.Run("已过期", func(t *testing.T) {
		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
		_, err := validator.ValidateToken(signToken(t, key, "kid-1", claims))
		assert.Error(t, err)
	})

	t.Run("未知 kid", func(t *testing.T) {
		_, err := validator.ValidateToken(signToken(t, key, "kid-2", validClaims()))
		assert.Error(t, err)
	})

	t.Run("其他密钥签名", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = validator.ValidateToken(signToken(t, other, "kid-1", validClaims()))
		assert.Error(t, err)
	})

	t.Run("格式错误", func(t *testing.T) {
		_, err := validator.ValidateToken("invalid.token.here")
		assert.Error(t, err)
	})
}

// TestKeycloakAuthMiddleware 测试认证中间件
func TestKeycloakAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKSServer(t, "kid-1", &key.PublicKey)
	validator := auth.NewKeycloakTokenValidator(testIssuer, server.URL, "mes-api")

	router := gin.New()
	router.Use(auth.KeycloakAuthMiddleware(validator))
	router.GET("/me", func(c *gin.Context) {
		user, ok := auth.UserFromContext(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": user.ID, "gin_user_id": c.GetString("user_id")})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, "kid-1", validClaims()))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"user-001","gin_user_id":"user-001"}`, w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestDevAuthMiddleware 测试开发模式认证
func TestDevAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(auth.DevAuthMiddleware())
	router.GET("/me", func(c *gin.Context) {
		user, _ := auth.UserFromContext(c.Request.Context())
		c.JSON(http.StatusOK, user)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Roles", "operator, supervisor")
	router.ServeHTTP(w, req)

	var user auth.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.ID)
	assert.Equal(t, []string{"operator", "supervisor"}, user.Roles)
}
