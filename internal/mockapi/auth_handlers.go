package mockapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sceneboard/internal/auth"
	"github.com/sceneboard/internal/middleware"
	"github.com/sceneboard/internal/models"
)

// handleRegister 处理用户注册
func (s *Server) handleRegister(c *gin.Context) {
	var req models.UserCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := s.auth.Register(req)
	if err != nil {
		var fields *auth.FieldErrors
		if errors.As(err, &fields) {
			c.JSON(http.StatusBadRequest, fields.Fields)
			return
		}
		s.logger.WithError(err).Error("register failed")
		detail(c, http.StatusInternalServerError, "A server error occurred.")
		return
	}

	pair, err := s.auth.IssuePair(account)
	if err != nil {
		s.logger.WithError(err).Error("issue tokens failed")
		detail(c, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	c.JSON(http.StatusCreated, pair)
}

// handleLogin 处理用户登录
func (s *Server) handleLogin(c *gin.Context) {
	var req models.UserLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		fields := gin.H{}
		if req.Username == "" {
			fields["username"] = []string{"This field is required."}
		}
		if req.Password == "" {
			fields["password"] = []string{"This field is required."}
		}
		c.JSON(http.StatusBadRequest, fields)
		return
	}

	account, err := s.auth.ValidateUser(req.Username, req.Password)
	if err != nil {
		detail(c, http.StatusUnauthorized, "%s", err.Error())
		return
	}

	pair, err := s.auth.IssuePair(account)
	if err != nil {
		s.logger.WithError(err).Error("issue tokens failed")
		detail(c, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req models.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Refresh == "" {
		fieldError(c, "refresh", "This field is required.")
		return
	}

	access, err := s.auth.Refresh(req.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"detail": auth.ErrTokenInvalid.Error(),
			"code":   "token_not_valid",
		})
		return
	}
	c.JSON(http.StatusOK, models.RefreshResponse{Access: access})
}

// handleGetMe 获取当前用户信息
func (s *Server) handleGetMe(c *gin.Context) {
	userID := middleware.UserID(c)
	account, err := s.auth.GetUserByID(userID)
	if err != nil {
		notFound(c)
		return
	}

	s.mu.Lock()
	used := len(s.data.projectsOf(userID))
	s.mu.Unlock()

	quota := account.Quota
	quota.UsedProjects = used
	c.JSON(http.StatusOK, models.User{
		ID:        account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Quota:     &quota,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	})
}
