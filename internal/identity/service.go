package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/collabhub/realtime/internal/logging"
)

// Service implements the identity provider's external contract (spec §6):
// register, login, google, verify, me, logout. Mounted by the gateway under
// /api/auth/*, reaching this service at /auth/* (prefix rewritten, spec
// §4.1 routing table).
type Service struct {
	accounts *AccountStore
	tokens   *TokenIssuer
}

// NewService builds a Service.
func NewService(accounts *AccountStore, tokens *TokenIssuer) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

// Routes registers every /auth/* endpoint onto router.
func (s *Service) Routes(router gin.IRouter) {
	router.POST("/auth/register", s.handleRegister)
	router.POST("/auth/login", s.handleLogin)
	router.POST("/auth/google", s.handleGoogle)
	router.GET("/auth/verify", s.handleVerify)
	router.GET("/auth/me", s.handleMe)
	router.POST("/auth/logout", s.handleLogout)
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (s *Service) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "email and password are required"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logging.Error(c.Request.Context(), "identity: failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "registration failed"})
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = strings.SplitN(req.Email, "@", 2)[0]
	}
	acc := &Account{
		UserID:       newAccountID(),
		Email:        req.Email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if !s.accounts.Create(acc) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "an account with this email already exists"})
		return
	}

	s.issueAndRespond(c, acc, http.StatusCreated)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request body"})
		return
	}

	acc, ok := s.accounts.ByEmail(req.Email)
	if !ok || acc.PasswordHash == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid email or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid email or password"})
		return
	}

	s.issueAndRespond(c, acc, http.StatusOK)
}

type googleRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// handleGoogle is a stub OAuth exchange: this system consumes Google
// identity only as a passthrough (spec §1: identity provider is an external
// collaborator, contract only). It provisions or reuses an account by email
// without a real token exchange, matching the contract's shape without
// reimplementing Google's OAuth handshake.
func (s *Service) handleGoogle(c *gin.Context) {
	var req googleRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "email is required"})
		return
	}

	acc, ok := s.accounts.ByEmail(req.Email)
	if !ok {
		displayName := req.DisplayName
		if displayName == "" {
			displayName = strings.SplitN(req.Email, "@", 2)[0]
		}
		acc = &Account{UserID: newAccountID(), Email: req.Email, DisplayName: displayName, CreatedAt: time.Now()}
		s.accounts.Create(acc)
	}

	s.issueAndRespond(c, acc, http.StatusOK)
}

func (s *Service) handleVerify(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing bearer token"})
		return
	}
	claims, err := s.tokens.Inspect(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid or expired token"})
		return
	}
	if s.accounts.IsRevoked(claims.ID) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "token has been revoked"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"userId": claims.Subject, "valid": true}})
}

func (s *Service) handleMe(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing bearer token"})
		return
	}
	claims, err := s.tokens.Inspect(token)
	if err != nil || s.accounts.IsRevoked(claims.ID) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid or expired token"})
		return
	}
	acc, ok := s.accounts.ByUserID(claims.Subject)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": accountView(acc)})
}

func (s *Service) handleLogout(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing bearer token"})
		return
	}
	claims, err := s.tokens.Inspect(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid or expired token"})
		return
	}
	s.accounts.Revoke(claims.ID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Service) issueAndRespond(c *gin.Context, acc *Account, status int) {
	token, _, err := s.tokens.Issue(acc)
	if err != nil {
		logging.Error(c.Request.Context(), "identity: failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to issue session token"})
		return
	}
	c.JSON(status, gin.H{"success": true, "data": gin.H{"token": token, "user": accountView(acc)}})
}

func accountView(acc *Account) gin.H {
	return gin.H{"userId": acc.UserID, "email": acc.Email, "displayName": acc.DisplayName}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
