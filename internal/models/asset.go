package models

import (
	"path/filepath"
	"strings"
	"time"
)

type AssetType string

const (
	AssetImage AssetType = "IMAGE"
	AssetVideo AssetType = "VIDEO"
)

type AssetStatus string

const (
	AssetPending    AssetStatus = "PENDING"
	AssetProcessing AssetStatus = "PROCESSING"
	AssetCompleted  AssetStatus = "COMPLETED"
	AssetFailed     AssetStatus = "FAILED"
)

type SourceType string

const (
	SourceGenerated SourceType = "GENERATED"
	SourceUploaded  SourceType = "UPLOADED"
	SourceImg2Vid   SourceType = "IMG2VID"
)

type Asset struct {
	ID           int64     `json:"id"`
	Box          int64     `json:"box"`
	BoxName      string    `json:"box_name,omitempty"`
	AssetType    AssetType `json:"asset_type"`
	OrderIndex   int       `json:"order_index"`
	FileURL      string    `json:"file_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	IsFavorite   bool      `json:"is_favorite"`

	PromptText       string         `json:"prompt_text"`
	AIModel          *int64         `json:"ai_model"`
	AIModelName      string         `json:"ai_model_name,omitempty"`
	Seed             *int64         `json:"seed"`
	GenerationConfig map[string]any `json:"generation_config,omitempty"`

	Status       AssetStatus `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	SourceType   SourceType  `json:"source_type"`
	ParentAsset  *int64      `json:"parent_asset"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type AssetPatch struct {
	IsFavorite *bool   `json:"is_favorite,omitempty"`
	PromptText *string `json:"prompt_text,omitempty"`
}

type AssetReorderRequest struct {
	AssetIDs []int64 `json:"asset_ids"`
}

// AssetFilter selects the visible subset of a box's assets.
type AssetFilter string

const (
	FilterAll      AssetFilter = "all"
	FilterFavorite AssetFilter = "favorite"
	FilterImage    AssetFilter = "image"
	FilterVideo    AssetFilter = "video"
)

func (f AssetFilter) Matches(a Asset) bool {
	switch f {
	case FilterFavorite:
		return a.IsFavorite
	case FilterImage:
		return a.AssetType == AssetImage
	case FilterVideo:
		return a.AssetType == AssetVideo
	}
	return true
}

// Apply returns the assets matching f, preserving order.
func (f AssetFilter) Apply(assets []Asset) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// AssetQuery is the query of GET /api/assets/.
type AssetQuery struct {
	Box        int64
	AssetType  AssetType
	IsFavorite *bool
}

// DetectAssetType classifies an uploaded file by extension.
func DetectAssetType(filename string) AssetType {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "mp4", "mov", "avi", "webm", "mkv", "m4v":
		return AssetVideo
	}
	return AssetImage
}
