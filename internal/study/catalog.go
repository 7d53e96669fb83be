package study

//go:generate mockgen -source=catalog.go -destination=mocks/mocks.go -package=mocks Catalog,Roster,Admin

import (
	"context"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// Catalog resolves study groups and their membership counts. The admission
// gate reads through this interface only; it never caches results because
// group state changes between flow steps.
type Catalog interface {
	// FindByID returns sentinel.ErrNotFound when the group does not exist.
	FindByID(ctx context.Context, id domain.StudyID) (*Group, error)
	MemberCount(ctx context.Context, id domain.StudyID) (int, error)
}

// Roster mutates study membership at registration commit.
type Roster interface {
	// AddMember is idempotent; adding an existing member is not an error.
	AddMember(ctx context.Context, id domain.StudyID, userID domain.UserID) error
}

// Admin covers the operator-facing mutations: capping or opening a study.
type Admin interface {
	// SetAttribute upserts a group attribute. Setting AttrRegistrationLimit
	// opens the study for self-registration.
	SetAttribute(ctx context.Context, id domain.StudyID, key, value string) error
	// RemoveAttribute deletes a group attribute. Removing
	// AttrRegistrationLimit closes the study.
	RemoveAttribute(ctx context.Context, id domain.StudyID, key string) error
}
