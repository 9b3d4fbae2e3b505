package mockapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sceneboard/internal/middleware"
	"github.com/sceneboard/internal/models"
)

func (s *Server) handleListProjects(c *gin.Context) {
	userID := middleware.UserID(c)

	s.mu.Lock()
	rows := s.data.projectsOf(userID)
	out := make([]models.Project, 0, len(rows))
	for _, p := range rows {
		out = append(out, s.data.projectView(p))
	}
	s.mu.Unlock()

	s.list(c, out, len(out))
}

func (s *Server) handleCreateProject(c *gin.Context) {
	userID := middleware.UserID(c)
	var req models.ProjectCreateRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		fieldError(c, "name", "This field is required.")
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = models.Aspect16x9
	}
	if !req.AspectRatio.Valid() {
		fieldError(c, "aspect_ratio", `"`+string(req.AspectRatio)+`" is not a valid choice.`)
		return
	}

	account, err := s.auth.GetUserByID(userID)
	if err != nil {
		notFound(c)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if limitReached(account.Quota.MaxProjects, len(s.data.projectsOf(userID))) {
		detail(c, http.StatusBadRequest, "Project limit reached (%d).", account.Quota.MaxProjects)
		return
	}
	row := s.insertProject(userID, req.Name, req.AspectRatio)
	c.JSON(http.StatusCreated, s.data.projectView(row))
}

func (s *Server) handleGetProject(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ownedProject(c)
	if !ok {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, s.data.projectView(p))
}

func (s *Server) handleUpdateProject(c *gin.Context) {
	var patch models.ProjectPatch
	if !bindJSON(c, &patch) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ownedProject(c)
	if !ok {
		notFound(c)
		return
	}

	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		fieldError(c, "name", "This field may not be blank.")
		return
	}
	if patch.Status != nil && !patch.Status.Valid() {
		fieldError(c, "status", `"`+string(*patch.Status)+`" is not a valid choice.`)
		return
	}
	if patch.AspectRatio != nil && !patch.AspectRatio.Valid() {
		fieldError(c, "aspect_ratio", `"`+string(*patch.AspectRatio)+`" is not a valid choice.`)
		return
	}

	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.AspectRatio != nil {
		p.AspectRatio = *patch.AspectRatio
	}
	p.UpdatedAt = time.Now()
	c.JSON(http.StatusOK, s.data.projectView(p))
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ownedProject(c)
	if !ok {
		notFound(c)
		return
	}

	for _, b := range s.data.boxesOf(p.ID) {
		s.removeBox(c, b)
	}
	delete(s.data.projects, p.ID)
	c.Status(http.StatusNoContent)
}

// insertProject requires s.mu.
func (s *Server) insertProject(owner int64, name string, aspect models.AspectRatio) *projectRow {
	s.data.nextProject++
	now := time.Now()
	row := &projectRow{
		Project: models.Project{
			ID:          s.data.nextProject,
			Name:        name,
			Status:      models.ProjectActive,
			AspectRatio: aspect,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		owner: owner,
	}
	s.data.projects[row.ID] = row
	return row
}

// ownedProject resolves :id to a project of the caller. Requires s.mu.
func (s *Server) ownedProject(c *gin.Context) (*projectRow, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, false
	}
	p, ok := s.data.projects[id]
	if !ok || p.owner != middleware.UserID(c) {
		return nil, false
	}
	return p, true
}

func limitReached(max, n int) bool {
	return max > 0 && n >= max
}
