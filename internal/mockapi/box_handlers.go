package mockapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sceneboard/internal/middleware"
	"github.com/sceneboard/internal/models"
)

func (s *Server) handleListBoxes(c *gin.Context) {
	userID := middleware.UserID(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	var projects []*projectRow
	if raw := c.Query("project"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fieldError(c, "project", "Enter a whole number.")
			return
		}
		if p, ok := s.data.projects[id]; ok && p.owner == userID {
			projects = append(projects, p)
		}
	} else {
		projects = s.data.projectsOf(userID)
	}

	out := []models.Box{}
	for _, p := range projects {
		for _, b := range s.data.boxesOf(p.ID) {
			out = append(out, s.data.boxView(b))
		}
	}
	s.list(c, out, len(out))
}

func (s *Server) handleCreateBox(c *gin.Context) {
	userID := middleware.UserID(c)
	var req models.BoxCreateRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		fieldError(c, "name", "This field is required.")
		return
	}

	account, err := s.auth.GetUserByID(userID)
	if err != nil {
		notFound(c)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data.projects[req.Project]
	if !ok || p.owner != userID {
		fieldError(c, "project", fmt.Sprintf(`Invalid pk "%d" - object does not exist.`, req.Project))
		return
	}
	siblings := s.data.boxesOf(p.ID)
	if limitReached(account.Quota.MaxBoxesPerProject, len(siblings)) {
		detail(c, http.StatusBadRequest, "Scene limit reached for this project (%d).", account.Quota.MaxBoxesPerProject)
		return
	}

	// new scenes go first
	for _, b := range siblings {
		b.OrderIndex++
	}
	s.data.nextBox++
	now := time.Now()
	row := &boxRow{
		Box: models.Box{
			ID:         s.data.nextBox,
			Project:    p.ID,
			Name:       req.Name,
			Status:     models.BoxDraft,
			OrderIndex: 0,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		owner: userID,
	}
	s.data.boxes[row.ID] = row
	c.JSON(http.StatusCreated, s.data.boxView(row))
}

func (s *Server) handleGetBox(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.ownedBox(c)
	if !ok {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, s.data.boxView(b))
}

func (s *Server) handleUpdateBox(c *gin.Context) {
	var patch models.BoxPatch
	if !bindJSON(c, &patch) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.ownedBox(c)
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

	if patch.Name != nil {
		b.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Status != nil {
		b.Status = *patch.Status
	}
	b.UpdatedAt = time.Now()
	c.JSON(http.StatusOK, s.data.boxView(b))
}

func (s *Server) handleDeleteBox(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.ownedBox(c)
	if !ok {
		notFound(c)
		return
	}
	s.removeBox(c, b)
	s.data.compactBoxes(b.Project)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReorderBoxes(c *gin.Context) {
	userID := middleware.UserID(c)
	var req models.BoxReorderRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.BoxIDs == nil {
		fieldError(c, "box_ids", "This field is required.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byProject := map[int64][]int64{}
	seen := map[int64]bool{}
	for _, id := range req.BoxIDs {
		b, ok := s.data.boxes[id]
		if !ok || b.owner != userID {
			fieldError(c, "box_ids", fmt.Sprintf("Invalid box id %d.", id))
			return
		}
		if seen[id] {
			fieldError(c, "box_ids", fmt.Sprintf("Duplicate box id %d.", id))
			return
		}
		seen[id] = true
		byProject[b.Project] = append(byProject[b.Project], id)
	}

	for projectID, ids := range byProject {
		applyOrder(s.data.boxesOf(projectID),
			func(b *boxRow) int64 { return b.ID },
			func(b *boxRow, i int) { b.OrderIndex = i },
			ids)
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Order updated."})
}

func (s *Server) handleSetHeadliner(c *gin.Context) {
	var req models.HeadlinerRequest
	if !bindJSON(c, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.ownedBox(c)
	if !ok {
		notFound(c)
		return
	}

	if req.AssetID == nil {
		b.Headliner = nil
	} else {
		a, ok := s.data.assets[*req.AssetID]
		if !ok || a.Box != b.ID {
			fieldError(c, "asset_id", "Asset does not belong to this scene.")
			return
		}
		id := a.ID
		b.Headliner = &id
	}
	b.UpdatedAt = time.Now()
	c.JSON(http.StatusOK, s.data.boxView(b))
}

// removeBox deletes a box with its assets and their blobs. Requires s.mu.
func (s *Server) removeBox(c *gin.Context, b *boxRow) {
	for _, a := range s.data.assetsOf(b.ID) {
		s.removeBlob(c, a)
		delete(s.data.assets, a.ID)
	}
	delete(s.data.boxes, b.ID)
}

// ownedBox resolves :id to a box of the caller. Requires s.mu.
func (s *Server) ownedBox(c *gin.Context) (*boxRow, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, false
	}
	b, ok := s.data.boxes[id]
	if !ok || b.owner != middleware.UserID(c) {
		return nil, false
	}
	return b, true
}
