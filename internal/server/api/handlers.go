package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"finsight/internal/chat/authz"
	"finsight/internal/chat/schema"
	"finsight/internal/finance"
	"finsight/internal/ingest"
	"finsight/internal/models"
	"finsight/internal/user"
	"finsight/pkg/logger"
)

// maxUploadBytes caps balance-sheet uploads at 20 MiB.
const maxUploadBytes = 20 << 20

// Answerer is the chat pipeline as the HTTP layer sees it.
type Answerer interface {
	Answer(ctx context.Context, userID uint, question string, companyID uint) (*schema.AnswerResult, error)
	Ready() bool
	EndSession(userID uint)
}

// AuthService covers registration, login and session lifecycle.
type AuthService interface {
	Register(ctx context.Context, username, password, role string, companyID *uint) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, *models.User, error)
	Logout(ctx context.Context, userID uint) error
}

// DirectoryReader resolves users and companies for scope checks.
type DirectoryReader interface {
	GetUser(ctx context.Context, id uint) (*schema.Identity, error)
	GetCompany(ctx context.Context, id uint) (*schema.Company, error)
	ListCompanies(ctx context.Context) ([]*schema.Company, error)
}

// MetricsReader serves the per-company metric series.
type MetricsReader interface {
	MetricsSeries(ctx context.Context, companyID uint) ([]finance.MetricPoint, error)
}

// Ingestor imports uploaded balance-sheet files.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.UploadRequest) (*ingest.Result, error)
}

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Handler holds every endpoint of the service.
type Handler struct {
	auth      AuthService
	answerer  Answerer
	directory DirectoryReader
	resolver  *authz.Resolver
	metrics   MetricsReader
	ingestor  Ingestor
	checks    map[string]HealthCheck
	log       *logger.Logger
}

func NewHandler(
	auth AuthService,
	answerer Answerer,
	directory DirectoryReader,
	resolver *authz.Resolver,
	metrics MetricsReader,
	ingestor Ingestor,
	checks map[string]HealthCheck,
	log *logger.Logger,
) *Handler {
	return &Handler{
		auth:      auth,
		answerer:  answerer,
		directory: directory,
		resolver:  resolver,
		metrics:   metrics,
		ingestor:  ingestor,
		checks:    checks,
		log:       log,
	}
}

// --- Auth ---

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required,min=8"`
	Role      string `json:"role" binding:"required"`
	CompanyID *uint  `json:"company_id"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.auth.Register(c.Request.Context(), req.Username, req.Password, req.Role, req.CompanyID)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		case errors.Is(err, user.ErrInvalidRole), errors.Is(err, user.ErrUnknownCompany):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error("Registration failed: " + err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user_id": created.ID, "role": created.Role})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, account, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		h.log.Error("Login failed: " + err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"role":       account.Role,
		"company_id": account.CompanyID,
	})
}

// Logout revokes the session and drops the user's conversation memory,
// so the next login starts a fresh conversation.
func (h *Handler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), userID); err != nil {
		h.log.Error("Logout failed: " + err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	h.answerer.EndSession(userID)

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// --- Chat ---

type chatRequest struct {
	Question  string `json:"question" binding:"required"`
	CompanyID uint   `json:"company_id" binding:"required"`
}

func (h *Handler) Chat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.answerer.Answer(c.Request.Context(), userID, req.Question, req.CompanyID)
	if err != nil {
		status, message := statusFromError(err)
		if status == http.StatusInternalServerError {
			h.log.Error("Chat request failed: " + err.Error())
		}
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, result)
}

// --- Companies ---

// Companies lists the companies inside the caller's scope.
func (h *Handler) Companies(c *gin.Context) {
	_, scope, ok := h.callerScope(c)
	if !ok {
		return
	}

	all, err := h.directory.ListCompanies(c.Request.Context())
	if err != nil {
		h.log.Error("Listing companies failed: " + err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	visible := make([]gin.H, 0, len(all))
	for _, company := range all {
		if !scope.Contains(company.ID) {
			continue
		}
		visible = append(visible, gin.H{
			"id":        company.ID,
			"name":      company.Name,
			"parent_id": company.ParentID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"companies": visible})
}

// CompanyMetrics serves the year-by-year headline figures for one
// company the caller may see.
func (h *Handler) CompanyMetrics(c *gin.Context) {
	_, scope, ok := h.callerScope(c)
	if !ok {
		return
	}

	companyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company id"})
		return
	}

	if _, err := h.directory.GetCompany(c.Request.Context(), uint(companyID)); err != nil {
		status, message := statusFromError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	if !scope.Contains(uint(companyID)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "access to this company is not allowed"})
		return
	}

	series, err := h.metrics.MetricsSeries(c.Request.Context(), uint(companyID))
	if err != nil {
		h.log.Error("Loading metrics failed: " + err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"company_id": companyID, "series": series})
}

// --- Upload ---

// Upload imports a balance-sheet file. Admin only.
func (h *Handler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	identity, err := h.directory.GetUser(c.Request.Context(), userID)
	if err != nil {
		status, message := statusFromError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	if identity.Role != schema.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admins may upload balance sheets"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	year := 0
	if raw := c.PostForm("year"); raw != "" {
		year, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), ingest.UploadRequest{
		Filename:    fileHeader.Filename,
		Data:        data,
		CompanyName: c.PostForm("company_name"),
		Year:        year,
		Currency:    c.PostForm("currency"),
	})
	if err != nil {
		status, message := statusFromError(err)
		if status == http.StatusInternalServerError {
			h.log.Error("Upload failed: " + err.Error())
		}
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusCreated, result)
}

// --- Health ---

// Health reports readiness of every backing dependency plus the
// answering pipeline itself.
func (h *Handler) Health(c *gin.Context) {
	components := gin.H{}
	healthy := true

	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			components[name] = "down"
			healthy = false
		} else {
			components[name] = "ok"
		}
	}

	if h.answerer.Ready() {
		components["llm"] = "ok"
	} else {
		components["llm"] = "down"
		healthy = false
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "components": components})
}

// callerScope resolves the caller's identity and authorization scope,
// writing the error response itself when that fails.
func (h *Handler) callerScope(c *gin.Context) (*schema.Identity, schema.Scope, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, nil, false
	}

	identity, err := h.directory.GetUser(c.Request.Context(), userID)
	if err != nil {
		status, message := statusFromError(err)
		c.JSON(status, gin.H{"error": message})
		return nil, nil, false
	}

	scope, err := h.resolver.Scope(c.Request.Context(), identity)
	if err != nil {
		status, message := statusFromError(err)
		c.JSON(status, gin.H{"error": message})
		return nil, nil, false
	}
	return identity, scope, true
}
