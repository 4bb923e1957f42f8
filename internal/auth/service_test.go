package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"taxfiler/internal/config"
	"taxfiler/internal/redis"
	"taxfiler/internal/storage"
)

func TestAuthIssueValidateRevoke(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)

	svc := NewService(db, nil, time.Hour)
	token, err := svc.IssueToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	userID, err := svc.ValidateToken(context.Background(), token)
	if err != nil || userID != 1 {
		t.Fatalf("ValidateToken failed: id=%d err=%v", userID, err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatalf("expected error after revoke")
	}

	token2, err := svc.IssueToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if err := svc.RevokeUserTokens(context.Background(), 1); err != nil {
		t.Fatalf("RevokeUserTokens error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token2); err == nil {
		t.Fatalf("expected error after revoke all")
	}
}

func TestAuthValidateExpiredToken(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 2)

	svc := NewService(db, nil, 10*time.Millisecond)
	token, err := svc.IssueToken(context.Background(), 2)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	// ensure token removed
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE token = ?`, token).Scan(&count); err != nil {
		t.Fatalf("query tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired token not purged")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func insertUser(t *testing.T, db *sql.DB, id int64) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO users (id, username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, '', ?, ?)`,
		id, fmt.Sprintf("user_%d", id), fmt.Sprintf("user_%d@example.com", id), now, now)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func TestAuthTokenCacheUsesRedis(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 10)

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(db, cacheClient, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, 10)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	raw := cacheClient.Raw()
	if raw == nil {
		t.Fatalf("redis raw client nil")
	}
	key := tokenKey(token)
	got, err := raw.Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("get redis token: %v", err)
	}
	if got != "10" {
		t.Fatalf("expected user 10 in rdb, got %s", got)
	}

	_, _ = db.Exec(`DELETE FROM user_tokens WHERE token = ?`, token)
	userID, err := svc.ValidateToken(ctx, token)
	if err != nil || userID != 10 {
		t.Fatalf("ValidateToken via rdb failed: id=%d err=%v", userID, err)
	}

	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := raw.Get(ctx, key).Result(); err == nil {
		t.Fatalf("expected redis key deleted")
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expected error after revoke and rdb delete")
	}
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	cleanup := func() {
		client.Close()
	}
	return client, cleanup
}

func TestRevokeUserTokensDropsCache(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 11)

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()
	svc := NewService(db, cacheClient, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, 11)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if err := svc.RevokeUserTokens(ctx, 11); err != nil {
		t.Fatalf("RevokeUserTokens: %v", err)
	}
	if _, err := cacheClient.Get(ctx, tokenKey(token)); err == nil {
		t.Fatalf("expected cached token removed")
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expected revoked token to fail validation")
	}
}

func TestMiddlewareAndCSRF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 12)
	svc := NewService(db, nil, time.Hour)
	token, err := svc.IssueToken(context.Background(), 12)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	router := gin.New()
	router.Use(svc.Middleware(), svc.CSRFMiddleware())
	router.POST("/echo", func(c *gin.Context) {
		userID, _ := UserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"userId": userID})
	})

	// no credentials
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// bearer is exempt from csrf
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for bearer, got %d", rec.Code)
	}

	// cookie without csrf header is rejected
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/echo", nil)
	req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf, got %d", rec.Code)
	}

	// cookie with matching csrf passes
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/echo", nil)
	req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
	req.AddCookie(&http.Cookie{Name: svc.CSRFCookieName(), Value: "csrf-1"})
	req.Header.Set(svc.CSRFHeaderName(), "csrf-1")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with csrf, got %d", rec.Code)
	}
}

func TestMiddlewareHidesStoreFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openTestDB(t)
	insertUser(t, db, 13)
	svc := NewService(db, nil, time.Hour)

	router := gin.New()
	router.Use(svc.Middleware())
	router.GET("/me", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	call := func(token string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := call("unknown-token")
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "authorization required") {
		t.Fatalf("expected generic 401, got %d %s", rec.Code, rec.Body.String())
	}

	db.Close()
	rec = call("abc")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store failure, got %d", rec.Code)
	}
	if body := rec.Body.String(); strings.Contains(body, "sql") || strings.Contains(body, "lookup token") {
		t.Fatalf("store error leaked to client: %s", body)
	}
}

func TestValidateTokenSentinels(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil, time.Hour)
	ctx := context.Background()
	if _, err := svc.ValidateToken(ctx, ""); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
	if _, err := svc.ValidateToken(ctx, "missing"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
