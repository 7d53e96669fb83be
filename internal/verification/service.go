// Package verification implements the email-verification action-token
// protocol: minting verification links, deduplicating resends within an
// authentication attempt, and redeeming tokens with session rebinding when
// the link is opened in a different browser.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hzi-braunschweig/pia-system/internal/actiontoken"
	"github.com/hzi-braunschweig/pia-system/internal/audit"
	"github.com/hzi-braunschweig/pia-system/internal/authsession"
	"github.com/hzi-braunschweig/pia-system/internal/identity"
	mailer "github.com/hzi-braunschweig/pia-system/internal/mail"
	"github.com/hzi-braunschweig/pia-system/internal/registration/metrics"
	dErrors "github.com/hzi-braunschweig/pia-system/pkg/domain-errors"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
	"github.com/hzi-braunschweig/pia-system/pkg/requestcontext"
)

// RedemptionPath is where verification links point back to.
const RedemptionPath = "/registration/action-token"

// Status classifies a successful token redemption.
type Status string

const (
	// StatusVerified means the email is now confirmed and the attempt may
	// continue where it left off.
	StatusVerified Status = "verified"
	// StatusRebound means the link was opened outside the originating
	// attempt; a fresh session was created and the token re-issued against
	// it. The caller must show the confirmation page carrying the rebound
	// link instead of finalizing.
	StatusRebound Status = "rebound"
)

// ChallengeResult reports what RequestChallenge did.
type ChallengeResult struct {
	// AlreadyVerified is true when the address was confirmed before the
	// request; the obligation is complete and no token was issued.
	AlreadyVerified bool
	// Ignored is true when the user has no email address on record; there is
	// nothing to verify and nothing was sent.
	Ignored bool
	// Deduplicated is true when a link for this address was already sent
	// within the attempt and no new mail went out.
	Deduplicated bool
	// Delivered is false when sending failed. The flow still proceeds; the
	// user can re-trigger the challenge.
	Delivered bool
	// ExpiresIn is the validity window communicated in the mail.
	ExpiresIn time.Duration
}

// Outcome is the result of a successful Redeem call.
type Outcome struct {
	Status Status

	// User is set for StatusVerified.
	User *identity.User
	// Session is the attempt to continue under: the original one for
	// StatusVerified, the freshly created one for StatusRebound.
	Session *authsession.Session
	// ReboundToken carries the re-issued serialized token for StatusRebound.
	ReboundToken string
}

// Service drives the verify-email protocol.
type Service struct {
	users    identity.Store
	sessions authsession.Store
	signer   *actiontoken.Signer
	mailer   mailer.Mailer
	audit    *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer

	baseURL         string
	tokenLifespan   time.Duration
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
	users identity.Store,
	sessions authsession.Store,
	signer *actiontoken.Signer,
	m mailer.Mailer,
	auditor *audit.Publisher,
	mx *metrics.Metrics,
	logger *slog.Logger,
	baseURL string,
	tokenLifespan, sessionLifespan time.Duration,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		users:           users,
		sessions:        sessions,
		signer:          signer,
		mailer:          m,
		audit:           auditor,
		metrics:         mx,
		logger:          logger,
		tracer:          otel.Tracer("verification"),
		baseURL:         baseURL,
		tokenLifespan:   tokenLifespan,
		sessionLifespan: sessionLifespan,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestChallenge mints a verification link for the user's email and sends
// it. An already-verified address completes immediately without a token; a
// user without any address is ignored, since there is nothing to verify.
// Within one attempt the same address is only mailed once: a re-request
// for the address already pending returns Deduplicated without sending.
// A malformed address fails without mutating user or session state.
func (s *Service) RequestChallenge(ctx context.Context, user *identity.User, session *authsession.Session) (ChallengeResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.RequestChallenge",
		trace.WithAttributes(attribute.String("session.id", session.ID.String())))
	defer span.End()

	if user.EmailVerified {
		s.metrics.IncrementVerificationEmail("already_verified")
		return ChallengeResult{AlreadyVerified: true}, nil
	}
	if user.Email == "" {
		s.metrics.IncrementVerificationEmail("ignored")
		return ChallengeResult{Ignored: true}, nil
	}
	if !emailUsable(user.Email) {
		return ChallengeResult{}, dErrors.New(dErrors.CodeInvalidInput, "user has no valid email address")
	}

	if session.Registration.PendingVerificationEmail == user.Email {
		s.metrics.IncrementVerificationEmail("deduplicated")
		return ChallengeResult{Deduplicated: true, Delivered: true, ExpiresIn: s.tokenLifespan}, nil
	}

	token := actiontoken.VerifyEmail{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: session.ID,
		ClientID:  session.ClientID,
		ExpiresAt: s.now().Add(s.tokenLifespan),
	}
	signed, err := s.signer.Sign(token)
	if err != nil {
		return ChallengeResult{}, err
	}
	link := s.link(signed, session.ClientID, session.TabID)

	if err := s.mailer.SendVerificationLink(ctx, user.Email, link, s.tokenLifespan); err != nil {
		// Delivery failure is not fatal to the flow. The pending marker stays
		// unset so a re-request sends again.
		s.metrics.IncrementVerificationEmail("failed")
		s.logger.ErrorContext(ctx, "failed to send verification email",
			slog.String("session_id", session.ID.String()),
			slog.Any("error", err))
		s.emit(ctx, audit.Event{
			Action:    audit.ActionEmailSendFailed,
			UserID:    user.ID,
			SessionID: session.ID,
			Email:     user.Email,
			ClientID:  session.ClientID,
			Error:     err.Error(),
		})
		return ChallengeResult{Delivered: false, ExpiresIn: s.tokenLifespan}, nil
	}

	session.Registration.PendingVerificationEmail = user.Email
	if err := s.sessions.Save(ctx, session); err != nil {
		return ChallengeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist session")
	}

	s.metrics.IncrementVerificationEmail("sent")
	s.emit(ctx, audit.Event{
		Action:    audit.ActionSendVerifyEmail,
		UserID:    user.ID,
		SessionID: session.ID,
		Email:     user.Email,
		ClientID:  session.ClientID,
	})
	return ChallengeResult{Delivered: true, ExpiresIn: s.tokenLifespan}, nil
}

// Redeem consumes a serialized verification token.
//
// Expiry is checked before anything else, so an expired link reads as
// expired even when its session is long gone. A token minted for an email
// the account no longer carries is rejected next, whatever the session
// state. A token whose session is still
// alive finalizes verification and removes the session. A token whose
// session cannot be found was opened in a different browser or after the
// attempt ended: a fresh session is created, the token re-issued against it
// and returned for an explicit confirmation step instead of finalizing
// straight from a mail client's link prefetch.
func (s *Service) Redeem(ctx context.Context, rawToken, clientID, tabID string) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Redeem")
	defer span.End()

	token, err := s.signer.Verify(rawToken)
	if err != nil {
		if errors.Is(err, actiontoken.ErrExpired) {
			s.metrics.IncrementTokenRedemption("expired")
		} else {
			s.metrics.IncrementTokenRedemption("rejected")
		}
		return nil, err
	}
	if token.ClientID != clientID {
		s.metrics.IncrementTokenRedemption("rejected")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token was issued for a different client")
	}
	span.SetAttributes(attribute.String("session.id", token.SessionID.String()))

	user, err := s.users.FindByID(ctx, token.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.metrics.IncrementTokenRedemption("rejected")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token user no longer exists")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load user")
	}
	// A link minted for a previous address must not act for the current one.
	// This holds whether the originating session is still alive or not, so it
	// is checked before the freshness branch.
	if user.Email != token.Email {
		s.metrics.IncrementTokenRedemption("rejected")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token email does not match account")
	}

	session, err := s.sessions.FindByID(ctx, token.SessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.rebind(ctx, token, clientID, tabID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load session")
	}
	return s.finalize(ctx, user, session)
}

// rebind handles the fresh-browser path: a new attempt is started for the
// token's user and the token re-issued bound to it, with the original
// session id preserved in the new token.
func (s *Service) rebind(ctx context.Context, token *actiontoken.VerifyEmail, clientID, tabID string) (*Outcome, error) {
	session := authsession.New(clientID, tabID, s.sessionLifespan, s.now())
	session.UserID = token.UserID
	session.Device = requestcontext.Device(ctx)
	session.AddRequiredAction(identity.ActionVerifyEmail)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist session")
	}

	rebound := token.Rebound(session.ID)
	signed, err := s.signer.Sign(rebound)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementTokenRedemption("rebound")
	s.emit(ctx, audit.Event{
		Action:    audit.ActionVerifyEmailRebound,
		UserID:    token.UserID,
		SessionID: session.ID,
		Email:     token.Email,
		ClientID:  clientID,
	})
	return &Outcome{Status: StatusRebound, Session: session, ReboundToken: signed}, nil
}

// finalize handles the continuing-session path: confirm the email, clear the
// obligation and end the attempt's session.
func (s *Service) finalize(ctx context.Context, user *identity.User, session *authsession.Session) (*Outcome, error) {
	if !user.EmailVerified {
		user.EmailVerified = true
		user.RemoveRequiredAction(identity.ActionVerifyEmail)
		if err := s.users.Update(ctx, user); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist user")
		}
	}

	// The attempt is complete; redeeming the same link again starts the
	// fresh-browser path instead of double-finalizing.
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not remove session")
	}

	s.metrics.IncrementTokenRedemption("verified")
	s.emit(ctx, audit.Event{
		Action:    audit.ActionVerifyEmail,
		UserID:    user.ID,
		SessionID: session.ID,
		Email:     user.Email,
		ClientID:  session.ClientID,
	})
	return &Outcome{Status: StatusVerified, User: user, Session: session}, nil
}

func (s *Service) link(signedToken, clientID, tabID string) string {
	q := url.Values{}
	q.Set("key", signedToken)
	q.Set("client_id", clientID)
	if tabID != "" {
		q.Set("tab_id", tabID)
	}
	return s.baseURL + RedemptionPath + "?" + q.Encode()
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			slog.String("action", string(event.Action)),
			slog.Any("error", err))
	}
}

func emailUsable(address string) bool {
	if address == "" {
		return false
	}
	_, err := mail.ParseAddress(address)
	return err == nil
}
