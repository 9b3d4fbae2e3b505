package mockapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sceneboard/internal/middleware"
	"github.com/sceneboard/internal/models"
	"github.com/sceneboard/internal/storage"
)

func (s *Server) handleListAssets(c *gin.Context) {
	userID := middleware.UserID(c)
	boxID, err := strconv.ParseInt(c.Query("box"), 10, 64)
	if err != nil {
		fieldError(c, "box", "This field is required.")
		return
	}
	var favorite *bool
	if raw := c.Query("is_favorite"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fieldError(c, "is_favorite", "Must be a valid boolean.")
			return
		}
		favorite = &v
	}
	assetType := models.AssetType(strings.ToUpper(c.Query("asset_type")))

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Asset{}
	if b, ok := s.data.boxes[boxID]; ok && b.owner == userID {
		for _, a := range s.data.assetsOf(boxID) {
			if assetType != "" && a.AssetType != assetType {
				continue
			}
			if favorite != nil && a.IsFavorite != *favorite {
				continue
			}
			out = append(out, s.data.assetView(a))
		}
	}
	s.list(c, out, len(out))
}

func (s *Server) handleGetAsset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ownedAsset(c)
	if !ok {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, s.data.assetView(a))
}

func (s *Server) handleUpdateAsset(c *gin.Context) {
	var patch models.AssetPatch
	if !bindJSON(c, &patch) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ownedAsset(c)
	if !ok {
		notFound(c)
		return
	}
	if patch.IsFavorite != nil {
		a.IsFavorite = *patch.IsFavorite
	}
	if patch.PromptText != nil {
		a.PromptText = *patch.PromptText
	}
	a.UpdatedAt = time.Now()
	c.JSON(http.StatusOK, s.data.assetView(a))
}

func (s *Server) handleDeleteAsset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ownedAsset(c)
	if !ok {
		notFound(c)
		return
	}

	if b, ok := s.data.boxes[a.Box]; ok && b.Headliner != nil && *b.Headliner == a.ID {
		b.Headliner = nil
	}
	s.removeBlob(c, a)
	delete(s.data.assets, a.ID)
	s.data.compactAssets(a.Box)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReorderAssets(c *gin.Context) {
	userID := middleware.UserID(c)
	var req models.AssetReorderRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.AssetIDs == nil {
		fieldError(c, "asset_ids", "This field is required.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byBox := map[int64][]int64{}
	seen := map[int64]bool{}
	for _, id := range req.AssetIDs {
		a, ok := s.data.assets[id]
		if !ok || a.owner != userID {
			fieldError(c, "asset_ids", fmt.Sprintf("Invalid asset id %d.", id))
			return
		}
		if seen[id] {
			fieldError(c, "asset_ids", fmt.Sprintf("Duplicate asset id %d.", id))
			return
		}
		seen[id] = true
		byBox[a.Box] = append(byBox[a.Box], id)
	}

	for boxID, ids := range byBox {
		applyOrder(s.data.assetsOf(boxID),
			func(a *assetRow) int64 { return a.ID },
			func(a *assetRow, i int) { a.OrderIndex = i },
			ids)
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Order updated."})
}

// handleUpload stores the multipart "file" field as a new asset at the end
// of the box.
func (s *Server) handleUpload(c *gin.Context) {
	userID := middleware.UserID(c)
	header, err := c.FormFile("file")
	if err != nil {
		fieldError(c, "file", "No file was submitted.")
		return
	}

	account, err := s.auth.GetUserByID(userID)
	if err != nil {
		notFound(c)
		return
	}

	s.mu.Lock()
	b, ok := s.ownedBox(c)
	if !ok {
		s.mu.Unlock()
		notFound(c)
		return
	}
	boxID := b.ID
	count := len(s.data.assetsOf(boxID))
	s.mu.Unlock()

	if limitReached(account.Quota.MaxAssetsPerBox, count) {
		detail(c, http.StatusBadRequest, "Asset limit reached for this scene (%d).", account.Quota.MaxAssetsPerBox)
		return
	}

	f, err := header.Open()
	if err != nil {
		detail(c, http.StatusBadRequest, "Upload could not be read.")
		return
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	key := path.Join("uploads", strconv.FormatInt(boxID, 10), uuid.NewString()+ext)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			contentType = byExt
		}
	}
	if err := s.blobs.Put(c.Request.Context(), key, f, header.Size, contentType); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("store upload failed")
		detail(c, http.StatusInternalServerError, "Upload could not be stored.")
		return
	}

	fileURL := s.publicURL(c) + "/media/" + key

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.boxes[boxID]; !ok {
		// box deleted while the file was stored
		_ = s.blobs.Delete(c.Request.Context(), key)
		notFound(c)
		return
	}

	s.data.nextAsset++
	now := time.Now()
	row := &assetRow{
		Asset: models.Asset{
			ID:           s.data.nextAsset,
			Box:          boxID,
			AssetType:    models.DetectAssetType(header.Filename),
			OrderIndex:   len(s.data.assetsOf(boxID)),
			FileURL:      fileURL,
			ThumbnailURL: fileURL,
			Status:       models.AssetCompleted,
			SourceType:   models.SourceUploaded,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		owner:   userID,
		blobKey: key,
	}
	s.data.assets[row.ID] = row
	c.JSON(http.StatusCreated, s.data.assetView(row))
}

func (s *Server) handleMedia(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	rc, err := s.blobs.Get(c.Request.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("read media failed")
		detail(c, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

// removeBlob drops the stored file of an asset. Requires s.mu.
func (s *Server) removeBlob(c *gin.Context, a *assetRow) {
	if a.blobKey == "" {
		return
	}
	if err := s.blobs.Delete(c.Request.Context(), a.blobKey); err != nil {
		s.logger.WithError(err).WithField("key", a.blobKey).Warn("delete media failed")
	}
}

// ownedAsset resolves :id to an asset of the caller. Requires s.mu.
func (s *Server) ownedAsset(c *gin.Context) (*assetRow, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, false
	}
	a, ok := s.data.assets[id]
	if !ok || a.owner != middleware.UserID(c) {
		return nil, false
	}
	return a, true
}
