// Package quota checks a user's limits before a create or upload request
// is sent. A nil quota, or a zero limit, means unlimited.
package quota

import (
	"strings"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/models"
)

// check rejects when existing already reached max, or when adding would
// pass it. A batch is accepted or rejected as a whole.
func check(noun string, max, existing, adding int) error {
	if max <= 0 {
		return nil
	}
	if existing >= max {
		return api.ValidationError("%s limit reached (%d)", noun, max)
	}
	if existing+adding > max {
		return api.ValidationError("Adding %d would exceed the %s limit: %d of %d left", adding, strings.ToLower(noun), max-existing, max)
	}
	return nil
}

// CheckAssets gates uploading adding files into a box holding existing
// assets.
func CheckAssets(q *models.Quota, existing, adding int) error {
	if q == nil {
		return nil
	}
	return check("Asset", q.MaxAssetsPerBox, existing, adding)
}

// CheckBoxes gates creating a scene in a project holding existing boxes.
func CheckBoxes(q *models.Quota, existing int) error {
	if q == nil {
		return nil
	}
	return check("Scene", q.MaxBoxesPerProject, existing, 1)
}

// CheckProjects gates creating a project against the used count reported
// by the server.
func CheckProjects(q *models.Quota) error {
	if q == nil {
		return nil
	}
	return check("Project", q.MaxProjects, q.UsedProjects, 1)
}
