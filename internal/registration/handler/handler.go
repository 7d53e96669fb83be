// Package handler exposes the registration and verification flows over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hzi-braunschweig/pia-system/internal/platform/middleware"
	"github.com/hzi-braunschweig/pia-system/internal/registration"
	"github.com/hzi-braunschweig/pia-system/internal/study"
	"github.com/hzi-braunschweig/pia-system/internal/verification"
	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	dErrors "github.com/hzi-braunschweig/pia-system/pkg/domain-errors"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
)

// RegistrationService is the slice of the registration service the handler needs.
type RegistrationService interface {
	Begin(ctx context.Context, clientID, tabID string, studyID domain.StudyID) (*registration.EntryResult, error)
	Commit(ctx context.Context, sessionID domain.SessionID, sub registration.Submission) (*registration.CommitResult, error)
	ResendVerification(ctx context.Context, sessionID domain.SessionID) (*registration.ResendResult, error)
}

// VerificationService is the slice of the verification service the handler needs.
type VerificationService interface {
	Redeem(ctx context.Context, rawToken, clientID, tabID string) (*verification.Outcome, error)
}

// Handler handles registration flow endpoints.
type Handler struct {
	logger     *slog.Logger
	reg        RegistrationService
	ver        VerificationService
	admin      study.Admin
	adminToken string
}

func New(
	reg RegistrationService,
	ver VerificationService,
	admin study.Admin,
	logger *slog.Logger,
	adminToken string,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		reg:        reg,
		ver:        ver,
		admin:      admin,
		adminToken: adminToken,
	}
}

// Register registers the registration routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/registration", h.handleEntry)
	r.Post("/registration/{sessionID}", h.handleCommit)
	r.Post("/registration/{sessionID}/resend", h.handleResend)
	r.Get(verification.RedemptionPath, h.handleActionToken)

	r.Route("/admin/studies/{studyID}/registration-limit", func(ar chi.Router) {
		ar.Use(middleware.RequireAdminToken(h.adminToken, h.logger))
		ar.Put("/", h.handleSetLimit)
		ar.Delete("/", h.handleRemoveLimit)
	})
}

type entryResponse struct {
	Decision    string `json:"decision"`
	MessageCode string `json:"message_code,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	GroupName   string `json:"group_name,omitempty"`
	TosURI      string `json:"tos_uri,omitempty"`
	PolicyURI   string `json:"policy_uri,omitempty"`
}

// handleEntry starts a registration attempt for the study given in the query.
func (h *Handler) handleEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	res, err := h.reg.Begin(ctx, q.Get("client_id"), q.Get("tab_id"), domain.StudyID(q.Get("study")))
	if err != nil {
		h.logger.ErrorContext(ctx, "registration entry failed", slog.Any("error", err))
		writeError(w, err)
		return
	}

	body := entryResponse{
		Decision:    res.Decision.String(),
		MessageCode: res.MessageCode,
		GroupName:   res.GroupName,
		TosURI:      res.Consent.TosURI,
		PolicyURI:   res.Consent.PolicyURI,
	}
	if res.Session != nil {
		body.SessionID = res.Session.ID.String()
	}
	status := http.StatusOK
	if !res.Decision.Admits() {
		// The page still renders the error, but the attempt cannot proceed.
		status = http.StatusForbidden
	}
	writeJSON(w, status, body)
}

type commitResponse struct {
	MessageCodes []string `json:"message_codes,omitempty"`
	Study        string   `json:"study,omitempty"`
	Email        string   `json:"email,omitempty"`

	Username       string `json:"username,omitempty"`
	EmailSent      bool   `json:"email_sent,omitempty"`
	EmailDelivered bool   `json:"email_delivered,omitempty"`
}

// handleCommit accepts the submitted registration form.
func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := domain.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}

	sub := registration.Submission{
		Study:           domain.StudyID(r.PostFormValue(registration.FieldStudy)),
		Email:           r.PostFormValue(registration.FieldEmail),
		Password:        r.PostFormValue(registration.FieldPassword),
		TosConfirmed:    checked(r.PostFormValue(registration.FieldTosConfirm)),
		PolicyConfirmed: checked(r.PostFormValue(registration.FieldPolicyConfirm)),
	}

	res, err := h.reg.Commit(ctx, sessionID, sub)
	if err != nil {
		h.logger.ErrorContext(ctx, "registration commit failed", slog.Any("error", err))
		writeError(w, err)
		return
	}
	if res.Failed() {
		writeJSON(w, http.StatusBadRequest, commitResponse{
			MessageCodes: res.MessageCodes,
			Study:        string(res.Study),
			Email:        res.Email,
		})
		return
	}

	writeJSON(w, http.StatusCreated, commitResponse{
		Username:       res.User.Username,
		EmailSent:      true,
		EmailDelivered: res.Challenge.Delivered,
	})
}

type resendResponse struct {
	Email           string `json:"email,omitempty"`
	EmailDelivered  bool   `json:"email_delivered"`
	Deduplicated    bool   `json:"deduplicated,omitempty"`
	AlreadyVerified bool   `json:"already_verified,omitempty"`
}

// handleResend re-requests the verification mail for an attempt whose link
// never arrived.
func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := domain.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.reg.ResendVerification(ctx, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "verification resend failed", slog.Any("error", err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resendResponse{
		Email:           res.Email,
		EmailDelivered:  res.Challenge.Delivered,
		Deduplicated:    res.Challenge.Deduplicated,
		AlreadyVerified: res.Challenge.AlreadyVerified,
	})
}

type redemptionResponse struct {
	Status      string `json:"status"`
	MessageCode string `json:"message_code,omitempty"`
	Username    string `json:"username,omitempty"`
	// ConfirmURL carries the re-issued link for the explicit confirmation
	// step when the link was opened outside the originating attempt.
	ConfirmURL string `json:"confirm_url,omitempty"`
}

// handleActionToken redeems an emailed verification link.
func (h *Handler) handleActionToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	out, err := h.ver.Redeem(ctx, q.Get("key"), q.Get("client_id"), q.Get("tab_id"))
	if err != nil {
		h.logger.WarnContext(ctx, "action token rejected", slog.Any("error", err))
		writeError(w, err)
		return
	}

	switch out.Status {
	case verification.StatusRebound:
		writeJSON(w, http.StatusOK, redemptionResponse{
			Status:     string(out.Status),
			ConfirmURL: confirmURL(out),
		})
	default:
		writeJSON(w, http.StatusOK, redemptionResponse{
			Status:      string(out.Status),
			MessageCode: registration.MsgEmailVerifiedWithUsername,
			Username:    out.User.Username,
		})
	}
}

type limitRequest struct {
	Limit string `json:"limit"`
}

// handleSetLimit opens a study by setting its registration limit attribute.
func (h *Handler) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studyID := domain.StudyID(chi.URLParam(r, "studyID"))

	var req limitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.admin.SetAttribute(ctx, studyID, study.AttrRegistrationLimit, strings.TrimSpace(req.Limit)); err != nil {
		writeError(w, translateStudyErr(err))
		return
	}
	h.logger.InfoContext(ctx, "study opened for registration",
		slog.String("study", string(studyID)),
		slog.String("limit", req.Limit))
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveLimit closes a study by removing the attribute.
func (h *Handler) handleRemoveLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studyID := domain.StudyID(chi.URLParam(r, "studyID"))

	if err := h.admin.RemoveAttribute(ctx, studyID, study.AttrRegistrationLimit); err != nil {
		writeError(w, translateStudyErr(err))
		return
	}
	h.logger.InfoContext(ctx, "study closed for registration",
		slog.String("study", string(studyID)))
	w.WriteHeader(http.StatusNoContent)
}

// confirmURL builds a relative redemption URL so the confirmation step lands
// on the same host the user already reached.
func confirmURL(out *verification.Outcome) string {
	q := url.Values{}
	q.Set("key", out.ReboundToken)
	q.Set("client_id", out.Session.ClientID)
	if out.Session.TabID != "" {
		q.Set("tab_id", out.Session.TabID)
	}
	return verification.RedemptionPath + "?" + q.Encode()
}

func checked(value string) bool {
	switch strings.ToLower(value) {
	case "on", "true", "yes", "1":
		return true
	default:
		return false
	}
}

func translateStudyErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "study not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "could not update study")
}
