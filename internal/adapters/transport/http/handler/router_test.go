package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/db/postgres"
	rediscache "github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/db/redis"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/transport/http/handler"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/app/auth/service"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/app/jwt"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/app/password"
	usersvc "github.com/Miraines/MoonyAndStarry/users-service/internal/app/user/service"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/metrics"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/session"
)

type app struct {
	router *gin.Engine
	m      *session.Manager
	hasher *password.Hasher
}

func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := session.NewManager(nil)
	require.NoError(t, m.Init("sqlite://file:"+uuid.NewString()+"?mode=memory&cache=shared",
		session.EngineOptions{}, session.SessionOptions{}))
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.CreateAll(context.Background()))

	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := rediscache.NewRedisUserCache(client, time.Minute)

	h, err := password.New(password.Argon2id, "")
	require.NoError(t, err)
	h = h.WithCost(4, &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})

	tokens, err := jwt.NewJWTService("test-secret", "HS256", time.Hour, 48*time.Hour)
	require.NoError(t, err)

	v := dto.NewValidator()
	reg := prometheus.NewRegistry()
	hd := handler.NewHandler(
		service.New(h, tokens, v, nil),
		usersvc.New(cache, v, nil),
		metrics.NewCollector(reg),
		map[string]handler.Pinger{"database": m, "redis": cache},
		nil,
	)
	router := handler.NewRouter(handler.RouterConfig{AllowedOrigins: []string{"http://localhost:3000"}}, hd, m, reg, nil)
	return &app{router: router, m: m, hasher: h}
}

func (a *app) do(t *testing.T, method, target, contentType, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *app) json(t *testing.T, method, target, body, bearer string) *httptest.ResponseRecorder {
	return a.do(t, method, target, "application/json", body, bearer)
}

func (a *app) form(t *testing.T, target string, values url.Values, bearer string) *httptest.ResponseRecorder {
	return a.do(t, http.MethodPost, target, "application/x-www-form-urlencoded", values.Encode(), bearer)
}

func (a *app) login(t *testing.T, username, pwd string) model.TokenPair {
	t.Helper()
	rec := a.form(t, "/api/v1/auth/token", url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {pwd},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair model.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func (a *app) signup(t *testing.T, username string) model.PublicUser {
	t.Helper()
	rec := a.json(t, http.MethodPost, "/api/v1/auth/signup",
		`{"username":"`+username+`","password":"secret","confirmation_password":"secret"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u model.PublicUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	return u
}

func (a *app) superuser(t *testing.T, username string) {
	t.Helper()
	hash, err := a.hasher.Hash("rootpwd")
	require.NoError(t, err)
	require.NoError(t, a.m.Scoped(context.Background(), func(ctx context.Context, s *session.Session) error {
		uow := postgres.NewUnitOfWork(s)
		if err := uow.Users().CreateUser(ctx, &model.User{Username: username, HashedPassword: hash, IsSuperuser: true}); err != nil {
			return err
		}
		return uow.Commit()
	}))
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestAliceLifecycle(t *testing.T) {
	a := newApp(t)

	rec := a.json(t, http.MethodPost, "/api/v1/auth/signup",
		`{"username":"Alice","email":"Alice@Example.com","fullname":"Alice A.","password":"secret","confirmation_password":"secret"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var alice model.PublicUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alice))
	require.EqualValues(t, 1, alice.ID)
	require.Equal(t, "alice", alice.Username)
	require.Equal(t, "alice@example.com", *alice.Email)
	require.NotContains(t, rec.Body.String(), "hashed_password")

	pair := a.login(t, "alice", "secret")
	require.Equal(t, "Bearer", pair.TokenType)
	require.NotEmpty(t, pair.AccessToken)

	rec = a.json(t, http.MethodGet, "/api/v1/users/me", "", pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"alice"`)

	rec = a.form(t, "/api/v1/auth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {pair.RefreshToken},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refreshed model.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshed))
	require.Equal(t, pair.RefreshToken, refreshed.RefreshToken)

	rec = a.json(t, http.MethodPost, "/api/v1/auth/logout", "", refreshed.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Logout successful", detail(t, rec))

	rec = a.form(t, "/api/v1/auth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {pair.RefreshToken},
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.json(t, http.MethodPost, "/api/v1/auth/logout", "", refreshed.AccessToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupErrors(t *testing.T) {
	a := newApp(t)
	a.signup(t, "alice")

	rec := a.json(t, http.MethodPost, "/api/v1/auth/signup",
		`{"username":"alice","password":"secret","confirmation_password":"secret"}`, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = a.json(t, http.MethodPost, "/api/v1/auth/signup",
		`{"username":"bob","password":"secret","confirmation_password":"other"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.json(t, http.MethodPost, "/api/v1/auth/signup", `{"username":"bob"}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.json(t, http.MethodPost, "/api/v1/auth/signup",
		`{"username":"bob!","password":"secret","confirmation_password":"secret"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// nothing from the failed attempts was persisted
	rec = a.json(t, http.MethodGet, "/api/v1/users", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pg model.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pg))
	require.EqualValues(t, 1, pg.PageInfo.Total)
}

func TestTokenErrors(t *testing.T) {
	a := newApp(t)
	a.signup(t, "alice")

	rec := a.form(t, "/api/v1/auth/token", url.Values{
		"grant_type": {"password"}, "username": {"alice"}, "password": {"wrong"},
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.form(t, "/api/v1/auth/token", url.Values{"username": {"alice"}}, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.form(t, "/api/v1/auth/token", url.Values{"grant_type": {"client_credentials"}}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.form(t, "/api/v1/auth/token", url.Values{
		"grant_type": {"refresh_token"}, "refresh_token": {"garbage"},
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	// an access token is not accepted as a refresh token
	pair := a.login(t, "alice", "secret")
	rec = a.form(t, "/api/v1/auth/token", url.Values{
		"grant_type": {"refresh_token"}, "refresh_token": {pair.AccessToken},
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutes(t *testing.T) {
	a := newApp(t)
	a.signup(t, "alice")
	a.superuser(t, "root")

	rec := a.json(t, http.MethodGet, "/api/v1/users/me", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = a.json(t, http.MethodGet, "/api/v1/users/me", "", "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	alice := a.login(t, "alice", "secret")

	rec = a.json(t, http.MethodPatch, "/api/v1/users/me", `{"fullname":"Alice Liddell"}`, alice.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "Alice Liddell")

	rec = a.json(t, http.MethodPatch, "/api/v1/users/2", `{"fullname":"x"}`, alice.AccessToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.json(t, http.MethodDelete, "/api/v1/users/2", "", alice.AccessToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	root := a.login(t, "root", "rootpwd")

	rec = a.json(t, http.MethodPatch, "/api/v1/users/1", `{"email":"alice@wonder.land"}`, root.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "alice@wonder.land")

	rec = a.json(t, http.MethodPatch, "/api/v1/users/2", `{"email":"alice@wonder.land"}`, root.AccessToken)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = a.json(t, http.MethodPatch, "/api/v1/users/0", `{"fullname":"x"}`, root.AccessToken)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.json(t, http.MethodDelete, "/api/v1/users/1", "", root.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Deleted id=1", detail(t, rec))

	rec = a.json(t, http.MethodDelete, "/api/v1/users/99", "", root.AccessToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// a fresh token for a deleted user is refused by the active-user guard
	deleted := a.login(t, "alice", "secret")
	rec = a.json(t, http.MethodGet, "/api/v1/users/me", "", deleted.AccessToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "inactive user", detail(t, rec))
}

func TestListAndGetUsers(t *testing.T) {
	a := newApp(t)
	for _, name := range []string{"ann", "ben", "cat"} {
		a.signup(t, name)
	}

	rec := a.json(t, http.MethodGet, "/api/v1/users?page%5Bsize%5D=2&page%5Bnumber%5D=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pg model.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pg))
	require.EqualValues(t, 3, pg.PageInfo.Total)
	require.Equal(t, 2, pg.PageInfo.Last)
	require.Nil(t, pg.PageInfo.Next)
	require.Len(t, pg.PageData, 1)
	require.Equal(t, "cat", pg.PageData[0].Username)

	rec = a.json(t, http.MethodGet, "/api/v1/users?username=ben", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pg))
	require.Len(t, pg.PageData, 1)

	rec = a.json(t, http.MethodGet, "/api/v1/users?page%5Bnumber%5D=5", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.json(t, http.MethodGet, "/api/v1/users?page%5Bsize%5D=0", "", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.json(t, http.MethodGet, "/api/v1/users/2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"ben"`)

	rec = a.json(t, http.MethodGet, "/api/v1/users/42", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.json(t, http.MethodGet, "/api/v1/users/abc", "", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServiceEndpoints(t *testing.T) {
	a := newApp(t)

	rec := a.json(t, http.MethodGet, "/api/v1/ping", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pong", detail(t, rec))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = a.json(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"database":"ok"`)
	require.Contains(t, rec.Body.String(), `"redis":"ok"`)

	rec = a.json(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "users_http_requests_total")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	require.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
