package models

import (
	"fmt"
	"time"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectPaused    ProjectStatus = "PAUSED"
	ProjectCompleted ProjectStatus = "COMPLETED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectPaused, ProjectCompleted:
		return true
	}
	return false
}

// AspectRatio is the target frame format of a project.
type AspectRatio string

const (
	Aspect16x9 AspectRatio = "16:9"
	Aspect9x16 AspectRatio = "9:16"
)

func (a AspectRatio) Valid() bool {
	return a == Aspect16x9 || a == Aspect9x16
}

// Orientation returns "horizontal" for 16:9 and "vertical" for 9:16.
func (a AspectRatio) Orientation() string {
	if a == Aspect9x16 {
		return "vertical"
	}
	return "horizontal"
}

// GridColumns is the number of columns used to lay out items of this
// aspect ratio. Vertical items get more columns so they do not become thin
// strips. context is "project" (scenes) or "box" (assets).
func (a AspectRatio) GridColumns(context string) int {
	if context == "box" {
		if a == Aspect9x16 {
			return 3
		}
		return 2
	}
	if a == Aspect9x16 {
		return 6
	}
	return 4
}

type Project struct {
	ID                 int64         `json:"id"`
	Name               string        `json:"name"`
	Status             ProjectStatus `json:"status"`
	AspectRatio        AspectRatio   `json:"aspect_ratio"`
	BoxesCount         int           `json:"boxes_count"`
	BoxesApprovedCount int           `json:"boxes_approved_count"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// CheckCounters verifies boxes_approved_count <= boxes_count.
func (p Project) CheckCounters() error {
	if p.BoxesApprovedCount > p.BoxesCount {
		return fmt.Errorf("project %d: approved boxes %d exceed boxes %d", p.ID, p.BoxesApprovedCount, p.BoxesCount)
	}
	return nil
}

type ProjectCreateRequest struct {
	Name        string      `json:"name" validate:"required,max=255"`
	AspectRatio AspectRatio `json:"aspect_ratio,omitempty" validate:"omitempty,oneof=16:9 9:16"`
}

// ProjectPatch holds the optional fields of PATCH /api/projects/{id}/.
type ProjectPatch struct {
	Name        *string        `json:"name,omitempty"`
	Status      *ProjectStatus `json:"status,omitempty"`
	AspectRatio *AspectRatio   `json:"aspect_ratio,omitempty"`
}
