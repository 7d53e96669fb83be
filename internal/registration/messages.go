// Package registration implements the study-gated self-registration flow:
// an admission gate over study groups, consent validation, account creation
// and the hand-off into email verification.
package registration

import "github.com/hzi-braunschweig/pia-system/internal/registration/consent"

// Message codes surfaced to the registration form. The rendering layer
// resolves them against its message bundles; the service only picks codes.
const (
	MsgStudyMissing              = "piaRegistrationStudyMissing"
	MsgStudyNotOpen              = "piaRegistrationStudyNotOpen"
	MsgUserLimitReached          = "piaRegistrationUserLimitReached"
	MsgConfirmTos                = consent.MsgConfirmTos
	MsgConfirmPolicy             = consent.MsgConfirmPolicy
	MsgEmailVerifiedWithUsername = "piaEmailVerifiedWithUsernameAcknowledgementMessage"

	// Standard form validation codes shared with the stock login theme.
	MsgInvalidEmail    = "invalidEmailMessage"
	MsgEmailExists     = "emailExistsMessage"
	MsgMissingPassword = "missingPasswordMessage"
)

// Form field names as submitted by the registration page.
const (
	FieldStudy         = "user.attributes.study"
	FieldEmail         = "email"
	FieldPassword      = "password"
	FieldTosConfirm    = "piaTosConfirm"
	FieldPolicyConfirm = "piaPolicyConfirm"
)
