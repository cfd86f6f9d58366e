package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/transport/http/dto"
	mw "github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/transport/http/middleware"
	authsvc "github.com/Miraines/MoonyAndStarry/users-service/internal/app/auth/service"
	usersvc "github.com/Miraines/MoonyAndStarry/users-service/internal/app/user/service"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/metrics"
)

// Pinger is anything /healthz should check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	auth    authsvc.Service
	users   usersvc.Service
	metrics metrics.Recorder
	checks  map[string]Pinger
	log     *zap.Logger
}

func NewHandler(auth authsvc.Service, users usersvc.Service, rec metrics.Recorder, checks map[string]Pinger, log *zap.Logger) *Handler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{auth: auth, users: users, metrics: rec, checks: checks, log: log}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (h *Handler) Signup(c *gin.Context) {
	var body dto.SignupDTO
	if err := c.ShouldBind(&body); err != nil {
		mw.AbortWithBindError(c, err)
		return
	}

	user, err := h.auth.Signup(c.Request.Context(), mw.UnitOfWork(c), body)
	h.metrics.RecordAuth("signup", outcome(err))
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) Token(c *gin.Context) {
	var body dto.TokenDTO
	if err := c.ShouldBindWith(&body, binding.Form); err != nil {
		mw.AbortWithBindError(c, err)
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), mw.UnitOfWork(c), body)
	h.metrics.RecordAuth("login", outcome(err))
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, pair)
}

func (h *Handler) Logout(c *gin.Context) {
	token, err := mw.BearerToken(c)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}

	err = h.auth.Logout(c.Request.Context(), mw.UnitOfWork(c), token)
	h.metrics.RecordAuth("logout", outcome(err))
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Logout successful"})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), mw.UnitOfWork(c), mw.TokenUser(c).ID)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateMe(c *gin.Context) {
	h.update(c, mw.TokenUser(c).ID)
}

func (h *Handler) GetUser(c *gin.Context) {
	var uri dto.IDDTO
	if err := c.ShouldBindUri(&uri); err != nil {
		mw.AbortWithBindError(c, err)
		return
	}

	user, err := h.users.Get(c.Request.Context(), mw.UnitOfWork(c), uri.ID)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) ListUsers(c *gin.Context) {
	var (
		filter dto.UserFilterDTO
		page   dto.PageDTO
	)
	if err := c.ShouldBindQuery(&filter); err != nil {
		mw.AbortWithBindError(c, err)
		return
	}
	if err := c.ShouldBindQuery(&page); err != nil {
		mw.AbortWithBindError(c, err)
		return
	}

	result, err := h.users.List(c.Request.Context(), mw.UnitOfWork(c), filter, page)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var uri dto.IDDTO
	if err := c.ShouldBindUri(&uri); err != nil {
		mw.AbortWithBindError(c, err)
		return
	}
	h.update(c, uri.ID)
}

func (h *Handler) update(c *gin.Context, id int64) {
	var body dto.UserUpdateDTO
	if err := c.ShouldBind(&body); err != nil {
		mw.AbortWithBindError(c, err)
		return
	}

	user, err := h.users.Update(c.Request.Context(), mw.UnitOfWork(c), id, body)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	var uri dto.IDDTO
	if err := c.ShouldBindUri(&uri); err != nil {
		mw.AbortWithBindError(c, err)
		return
	}

	detail, err := h.users.Delete(c.Request.Context(), mw.UnitOfWork(c), uri.ID)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": detail})
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"detail": "pong"})
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := gin.H{}, http.StatusOK
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			status[name] = "down"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	c.JSON(code, gin.H{"status": status, "time": time.Now().Unix()})
}
