package models

import "time"

type BoxStatus string

const (
	BoxDraft      BoxStatus = "DRAFT"
	BoxInProgress BoxStatus = "IN_PROGRESS"
	BoxReview     BoxStatus = "REVIEW"
	BoxApproved   BoxStatus = "APPROVED"
)

func (s BoxStatus) Valid() bool {
	switch s {
	case BoxDraft, BoxInProgress, BoxReview, BoxApproved:
		return true
	}
	return false
}

// Box is a scene: an ordered sub-container of a project.
type Box struct {
	ID          int64     `json:"id"`
	Project     int64     `json:"project"`
	ProjectName string    `json:"project_name"`
	Name        string    `json:"name"`
	Status      BoxStatus `json:"status"`
	OrderIndex  int       `json:"order_index"`
	Headliner   *int64    `json:"headliner"`

	// Denormalized headliner media for list views.
	HeadlinerURL          string    `json:"headliner_url,omitempty"`
	HeadlinerThumbnailURL string    `json:"headliner_thumbnail_url,omitempty"`
	HeadlinerType         AssetType `json:"headliner_type,omitempty"`

	AssetsCount int       `json:"assets_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HeadlinerIn reports whether the headliner, if set, references one of
// the given assets of this box.
func (b Box) HeadlinerIn(assets []Asset) bool {
	if b.Headliner == nil {
		return true
	}
	for _, a := range assets {
		if a.ID == *b.Headliner && a.Box == b.ID {
			return true
		}
	}
	return false
}

// ClearHeadliner drops the headliner reference and its denormalized fields.
func (b *Box) ClearHeadliner() {
	b.Headliner = nil
	b.HeadlinerURL = ""
	b.HeadlinerThumbnailURL = ""
	b.HeadlinerType = ""
}

type BoxCreateRequest struct {
	Project int64  `json:"project" validate:"required"`
	Name    string `json:"name" validate:"required,max=255"`
}

type BoxPatch struct {
	Name   *string    `json:"name,omitempty"`
	Status *BoxStatus `json:"status,omitempty"`
}

type BoxReorderRequest struct {
	BoxIDs []int64 `json:"box_ids"`
}

// HeadlinerRequest sets (AssetID != nil) or clears the box headliner.
type HeadlinerRequest struct {
	AssetID *int64 `json:"asset_id"`
}
