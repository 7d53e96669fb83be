package study

import (
	"strconv"
	"strings"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// AttrRegistrationLimit is the group attribute that both enables
// self-registration and optionally caps it. Its presence is the "registration
// enabled" flag; its value, when numeric, is the cap.
const AttrRegistrationLimit = "registrationLimit"

// Unlimited is the parsed limit for a present but empty or non-numeric
// registrationLimit attribute.
const Unlimited = -1

// Group is a study group as the catalog sees it: a display name plus free-form
// string attributes, the way the auth server stores group metadata.
type Group struct {
	ID         domain.StudyID
	Name       string
	Attributes map[string]string
}

// RegistrationLimit reports whether the limit attribute is present and its
// parsed value. Empty or unparsable values mean "open, unlimited" (-1);
// negative configured values are clamped to unlimited as well.
func (g *Group) RegistrationLimit() (limit int, present bool) {
	raw, ok := g.Attributes[AttrRegistrationLimit]
	if !ok {
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Unlimited, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return Unlimited, true
	}
	return n, true
}
