// Package consent validates the terms-of-service and privacy-policy
// checkboxes on the registration form. A checkbox is only required when the
// deployment configures the corresponding document URI; environments without
// a policy document must not block registration on a checkbox nobody can see.
package consent

import "strings"

// Requirements carries the configured document URIs. An empty URI means the
// corresponding confirmation is not collected.
type Requirements struct {
	TosURI    string
	PolicyURI string
}

// Values holds the raw submitted checkbox values.
type Values struct {
	TosConfirmed    bool
	PolicyConfirmed bool
}

// TosRequired reports whether a terms-of-service confirmation is collected.
func (r Requirements) TosRequired() bool { return strings.TrimSpace(r.TosURI) != "" }

// PolicyRequired reports whether a privacy-policy confirmation is collected.
func (r Requirements) PolicyRequired() bool { return strings.TrimSpace(r.PolicyURI) != "" }

// Validate returns the message codes for every missing confirmation, in a
// stable order (terms first). An empty slice means the submission passes.
func Validate(req Requirements, v Values) []string {
	var missing []string
	if req.TosRequired() && !v.TosConfirmed {
		missing = append(missing, MsgConfirmTos)
	}
	if req.PolicyRequired() && !v.PolicyConfirmed {
		missing = append(missing, MsgConfirmPolicy)
	}
	return missing
}

// Checkbox message codes.
const (
	MsgConfirmTos    = "piaRegistrationConfirmTos"
	MsgConfirmPolicy = "piaRegistrationConfirmPolicy"
)
