package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hzi-braunschweig/pia-system/internal/audit"
	"github.com/hzi-braunschweig/pia-system/internal/authsession"
	"github.com/hzi-braunschweig/pia-system/internal/identity"
	"github.com/hzi-braunschweig/pia-system/internal/registration/consent"
	"github.com/hzi-braunschweig/pia-system/internal/registration/gate"
	"github.com/hzi-braunschweig/pia-system/internal/registration/metrics"
	"github.com/hzi-braunschweig/pia-system/internal/study"
	"github.com/hzi-braunschweig/pia-system/internal/verification"
	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	dErrors "github.com/hzi-braunschweig/pia-system/pkg/domain-errors"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
	"github.com/hzi-braunschweig/pia-system/pkg/requestcontext"
)

// Challenger is the slice of the verification service the commit path needs.
type Challenger interface {
	RequestChallenge(ctx context.Context, user *identity.User, session *authsession.Session) (verification.ChallengeResult, error)
}

// EntryResult is what the registration page renders at flow start.
type EntryResult struct {
	Decision gate.Decision
	// MessageCode is set when the decision blocks registration.
	MessageCode string
	// Session is created only for an admitting decision.
	Session *authsession.Session
	// GroupName is the display name of the selected study.
	GroupName string
	// Consent mirrors the configured document URIs so the form knows which
	// checkboxes to render.
	Consent consent.Requirements
}

// Submission carries the raw registration form values.
type Submission struct {
	// Study is the form's study attribute. When present it supersedes the
	// study pinned at entry, so the form stays the source of truth at
	// submit time.
	Study           domain.StudyID
	Email           string
	Password        string
	TosConfirmed    bool
	PolicyConfirmed bool
}

// CommitResult reports a commit attempt. A non-empty MessageCodes means
// validation failed and the form re-renders; Study and Email are echoed back
// so the user's input survives the round trip.
type CommitResult struct {
	MessageCodes []string
	Study        domain.StudyID
	Email        string

	// Set on success.
	User      *identity.User
	Session   *authsession.Session
	Challenge verification.ChallengeResult
}

// Failed reports whether the commit was rejected.
func (r *CommitResult) Failed() bool { return len(r.MessageCodes) > 0 }

// Service orchestrates the self-registration flow: the admission gate at
// entry, validation and account creation at commit, and the hand-off into
// email verification.
type Service struct {
	gate     *gate.AdmissionGate
	catalog  study.Catalog
	roster   study.Roster
	users    identity.Store
	sessions authsession.Store
	verifier Challenger
	audit    *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger

	consent         consent.Requirements
	role            string
	sessionLifespan time.Duration
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	g *gate.AdmissionGate,
	catalog study.Catalog,
	roster study.Roster,
	users identity.Store,
	sessions authsession.Store,
	verifier Challenger,
	auditor *audit.Publisher,
	mx *metrics.Metrics,
	logger *slog.Logger,
	consentReqs consent.Requirements,
	role string,
	sessionLifespan time.Duration,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		gate:            g,
		catalog:         catalog,
		roster:          roster,
		users:           users,
		sessions:        sessions,
		verifier:        verifier,
		audit:           auditor,
		metrics:         mx,
		logger:          logger,
		consent:         consentReqs,
		role:            role,
		sessionLifespan: sessionLifespan,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin runs the admission gate for a study and, when it admits, starts an
// authentication attempt with the study pinned to it. Blocking decisions
// return the message code to render; no session is created for them.
func (s *Service) Begin(ctx context.Context, clientID, tabID string, studyID domain.StudyID) (*EntryResult, error) {
	decision, err := s.gate.Evaluate(ctx, studyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not evaluate study admission")
	}
	s.metrics.IncrementAdmission(decision.String())

	res := &EntryResult{Decision: decision, Consent: s.consent}
	if !decision.Admits() {
		res.MessageCode = gateMessage(decision)
		return res, nil
	}

	group, err := s.catalog.FindByID(ctx, studyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load study group")
	}
	res.GroupName = group.Name

	session := authsession.New(clientID, tabID, s.sessionLifespan, s.now())
	session.Device = requestcontext.Device(ctx)
	session.Registration.Study = studyID
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist session")
	}
	res.Session = session
	return res, nil
}

// Commit validates the submitted form against the attempt's study and, when
// everything passes, creates the account, joins the study and triggers the
// verification challenge. The admission gate is re-evaluated here because
// group state may have changed since Begin; two racing commits can still
// both pass the cap check, which keeps the limit best-effort.
func (s *Service) Commit(ctx context.Context, sessionID domain.SessionID, sub Submission) (*CommitResult, error) {
	started := s.now()

	session, err := s.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeExpired, "registration attempt has expired")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load session")
	}

	if sub.Study != "" {
		session.Registration.Study = sub.Study
	}
	res := &CommitResult{Study: session.Registration.Study, Email: sub.Email}

	decision, err := s.gate.Evaluate(ctx, session.Registration.Study)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not evaluate study admission")
	}
	s.metrics.IncrementAdmission(decision.String())
	if !decision.Admits() {
		res.MessageCodes = append(res.MessageCodes, gateMessage(decision))
	}

	if !validEmail(sub.Email) {
		res.MessageCodes = append(res.MessageCodes, MsgInvalidEmail)
	}
	if strings.TrimSpace(sub.Password) == "" {
		res.MessageCodes = append(res.MessageCodes, MsgMissingPassword)
	}

	missing := consent.Validate(s.consent, consent.Values{
		TosConfirmed:    sub.TosConfirmed,
		PolicyConfirmed: sub.PolicyConfirmed,
	})
	for _, code := range missing {
		switch code {
		case consent.MsgConfirmTos:
			s.metrics.IncrementConsentFailure("tos")
		case consent.MsgConfirmPolicy:
			s.metrics.IncrementConsentFailure("policy")
		}
	}
	res.MessageCodes = append(res.MessageCodes, missing...)

	if res.Failed() {
		return res, nil
	}

	user, err := s.createUser(ctx, sub)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			res.MessageCodes = append(res.MessageCodes, MsgEmailExists)
			return res, nil
		}
		return nil, err
	}

	if err := s.roster.AddMember(ctx, session.Registration.Study, user.ID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not join study group")
	}

	session.UserID = user.ID
	session.AddRequiredAction(identity.ActionVerifyEmail)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist session")
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionRegistrationCompleted,
		UserID:    user.ID,
		SessionID: session.ID,
		Email:     user.Email,
		Study:     session.Registration.Study,
		ClientID:  session.ClientID,
	})
	s.metrics.IncrementCompleted(string(session.Registration.Study))

	challenge, err := s.verifier.RequestChallenge(ctx, user, session)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveCommitLatency(s.now().Sub(started))

	res.User = user
	res.Session = session
	res.Challenge = challenge
	return res, nil
}

// ResendResult reports a re-requested verification challenge.
type ResendResult struct {
	Email     string
	Challenge verification.ChallengeResult
}

// ResendVerification re-triggers the verification challenge for an attempt
// whose mail never arrived. The dedup rule in the verification service keeps
// a page refresh from mailing the same address twice; only a genuinely
// undelivered link is sent again.
func (s *Service) ResendVerification(ctx context.Context, sessionID domain.SessionID) (*ResendResult, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeExpired, "registration attempt has expired")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load session")
	}
	if session.UserID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "attempt has no account to verify yet")
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load user")
	}

	challenge, err := s.verifier.RequestChallenge(ctx, user, session)
	if err != nil {
		return nil, err
	}
	return &ResendResult{Email: user.Email, Challenge: challenge}, nil
}

func (s *Service) createUser(ctx context.Context, sub Submission) (*identity.User, error) {
	hash, err := identity.HashPassword(sub.Password)
	if err != nil {
		return nil, err
	}
	user := &identity.User{
		ID:           domain.NewUserID(),
		Username:     newPseudonym(),
		Email:        strings.TrimSpace(sub.Email),
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	user.GrantRole(s.role)
	user.AddRequiredAction(identity.ActionVerifyEmail)

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "email address is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not create user")
	}
	return user, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			slog.String("action", string(event.Action)),
			slog.Any("error", err))
	}
}

func gateMessage(d gate.Decision) string {
	switch d {
	case gate.DecisionMissing:
		return MsgStudyMissing
	case gate.DecisionClosed:
		return MsgStudyNotOpen
	case gate.DecisionCapReached:
		return MsgUserLimitReached
	default:
		return MsgStudyNotOpen
	}
}

func validEmail(address string) bool {
	if strings.TrimSpace(address) == "" {
		return false
	}
	_, err := mail.ParseAddress(address)
	return err == nil
}

// newPseudonym generates the participant-facing username. Accounts never log
// in with their email address; the pseudonym is acknowledged to the user
// after email verification.
func newPseudonym() string {
	return fmt.Sprintf("pia-%s", strings.Split(uuid.NewString(), "-")[0])
}
