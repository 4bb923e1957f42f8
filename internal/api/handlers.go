package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taxfiler/internal/auth"
	"taxfiler/internal/logging"
	"taxfiler/internal/models"
	"taxfiler/internal/service/dashboard"
	"taxfiler/internal/service/filing"
	"taxfiler/internal/service/records"
	"taxfiler/internal/worker"
)

// Pipeline runs the Form 16 chain. *filing.Orchestrator satisfies it.
type Pipeline interface {
	Process(ctx context.Context, sub filing.Submission) (*filing.Result, error)
	Resume(ctx context.Context, userID, uploadID int64) (*filing.Result, error)
	CurrentYear() string
}

type Chatbot interface {
	GenerateReply(ctx context.Context, message, chatContext string) (string, error)
}

// JobRunner serializes work per user. *worker.Dispatcher satisfies it.
type JobRunner interface {
	Run(ctx context.Context, userID int64, fn func(ctx context.Context) error) error
}

type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Deps are the collaborators of the HTTP layer. Limiters are optional.
type Deps struct {
	Records          *records.Service
	Auth             *auth.Service
	Pipeline         Pipeline
	Chat             Chatbot
	Dashboard        *dashboard.Service
	Workers          JobRunner
	UploadLimiter    Limiter
	ChatLimiter      Limiter
	MaxUploadBytes   int64
	AllowedMimeTypes []string
}

// Handler wires HTTP routes to the filing services.
type Handler struct {
	records        *records.Service
	auth           *auth.Service
	pipeline       Pipeline
	chat           Chatbot
	dashboard      *dashboard.Service
	workers        JobRunner
	uploadLimiter  Limiter
	chatLimiter    Limiter
	maxUploadBytes int64
	allowedTypes   []string
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		records:        deps.Records,
		auth:           deps.Auth,
		pipeline:       deps.Pipeline,
		chat:           deps.Chat,
		dashboard:      deps.Dashboard,
		workers:        deps.Workers,
		uploadLimiter:  deps.UploadLimiter,
		chatLimiter:    deps.ChatLimiter,
		maxUploadBytes: deps.MaxUploadBytes,
		allowedTypes:   deps.AllowedMimeTypes,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/register", h.registerUser)
	api.POST("/login", h.loginUser)

	private := api.Group("")
	private.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	private.POST("/logout", h.logoutUser)
	private.GET("/user", h.currentUser)

	private.POST("/upload-form16", h.rateLimited(h.uploadLimiter, "upload"), h.uploadForm16)
	private.GET("/uploads", h.listUploads)
	private.GET("/uploads/:id", h.getUpload)
	private.POST("/uploads/:id/retry", h.rateLimited(h.uploadLimiter, "upload"), h.retryUpload)

	private.GET("/tax-filings", h.listFilings)
	private.POST("/tax-filings", h.createFiling)
	private.GET("/tax-filings/:id", h.getFiling)
	private.POST("/tax-filings/:id/file", h.markFiled)
	private.GET("/tax-filings/:id/export", h.exportFiling)

	private.GET("/chat/messages", h.listChatMessages)
	private.POST("/chat/messages", h.rateLimited(h.chatLimiter, "chat"), h.postChatMessage)

	private.GET("/dashboard/stats", h.dashboardStats)
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
		return 0, false
	}
	return userID, true
}

// rateLimited rejects requests over the per-user quota of limiter. A nil limiter allows everything.
func (h *Handler) rateLimited(limiter Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		userID, _ := auth.UserIDFromContext(c)
		if !limiter.Allow(c.Request.Context(), scope+":"+strconv.FormatInt(userID, 10)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests, please slow down"})
			return
		}
		c.Next()
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps service errors onto status codes. Unknown errors are logged
// and reported with the generic message.
func respondError(c *gin.Context, err error, generic string) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "server is busy, please retry"})
	case errors.Is(err, records.ErrDuplicateFiling), errors.Is(err, records.ErrInvalidTransition),
		errors.Is(err, filing.ErrNotResumable):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logging.FromContext(c.Request.Context()).Warn("request aborted", "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"message": "request timed out"})
	default:
		logging.FromContext(c.Request.Context()).Error(generic, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": generic})
	}
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	*models.User
	AuthToken string `json:"authToken"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	user, err := h.records.RegisterUser(c.Request.Context(), records.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	token, ok := h.startSession(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{User: user, AuthToken: token})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	user, err := h.records.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	token, ok := h.startSession(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse{User: user, AuthToken: token})
}

func (h *Handler) startSession(c *gin.Context, userID int64) (string, bool) {
	authToken, err := h.auth.IssueToken(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "issue token failed")
		return "", false
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		respondError(c, err, "issue token failed")
		return "", false
	}
	h.setAuthCookies(c, authToken, csrfToken)
	return authToken, true
}

func (h *Handler) logoutUser(c *gin.Context) {
	if token, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
			logging.FromContext(c.Request.Context()).Warn("revoke token failed", "error", err)
		}
	}
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) currentUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.records.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to load user")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) dashboardStats(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	stats, err := h.dashboard.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to fetch dashboard stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}
