package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzi-braunschweig/pia-system/internal/actiontoken"
	"github.com/hzi-braunschweig/pia-system/internal/audit"
	"github.com/hzi-braunschweig/pia-system/internal/authsession"
	"github.com/hzi-braunschweig/pia-system/internal/identity"
	"github.com/hzi-braunschweig/pia-system/internal/mail"
	"github.com/hzi-braunschweig/pia-system/internal/registration"
	"github.com/hzi-braunschweig/pia-system/internal/registration/consent"
	"github.com/hzi-braunschweig/pia-system/internal/registration/gate"
	"github.com/hzi-braunschweig/pia-system/internal/registration/handler"
	"github.com/hzi-braunschweig/pia-system/internal/study"
	"github.com/hzi-braunschweig/pia-system/internal/study/store"
	"github.com/hzi-braunschweig/pia-system/internal/verification"
)

const adminToken = "test-admin-token"

type fixture struct {
	router  chi.Router
	catalog *store.Memory
	mailer  *mail.Capture
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog := store.NewMemory()
	catalog.Seed(&study.Group{
		ID:   "covid-cohort",
		Name: "COVID Cohort",
		Attributes: map[string]string{
			study.AttrRegistrationLimit: "-1",
		},
	})

	users := identity.NewMemoryStore()
	sessions := authsession.NewMemoryStore()
	mailer := mail.NewCapture()
	publisher := audit.NewPublisher(audit.NewMemoryStore())
	signer := actiontoken.NewSigner("test-signing-key", "https://auth.example.com")

	verifier := verification.NewService(
		users, sessions, signer, mailer, publisher, nil, nil,
		"https://auth.example.com", 15*time.Minute, 30*time.Minute,
	)
	reg := registration.NewService(
		gate.New(catalog, nil),
		catalog, catalog, users, sessions,
		verifier, publisher, nil, nil,
		consent.Requirements{TosURI: "https://example.com/tos"},
		"Proband",
		30*time.Minute,
	)

	r := chi.NewRouter()
	handler.New(reg, verifier, catalog, nil, adminToken).Register(r)

	return &fixture{router: r, catalog: catalog, mailer: mailer}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func entryRequest(studyID string) *http.Request {
	return httptest.NewRequest(http.MethodGet,
		"/registration?study="+url.QueryEscape(studyID)+"&client_id=pia-web&tab_id=tab-1", nil)
}

func (f *fixture) beginSession(t *testing.T) string {
	t.Helper()
	rec := f.do(t, entryRequest("covid-cohort"))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decode(t, rec, &body)
	sessionID, _ := body["session_id"].(string)
	require.NotEmpty(t, sessionID)
	return sessionID
}

func commitRequest(sessionID string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/registration/"+sessionID,
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func validForm() url.Values {
	return url.Values{
		registration.FieldStudy:      {"covid-cohort"},
		registration.FieldEmail:      {"proband@example.com"},
		registration.FieldPassword:   {"correct horse battery staple"},
		registration.FieldTosConfirm: {"on"},
	}
}

func TestEntry(t *testing.T) {
	t.Run("open study", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, entryRequest("covid-cohort"))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		decode(t, rec, &body)
		assert.Equal(t, "ok", body["decision"])
		assert.Equal(t, "COVID Cohort", body["group_name"])
		assert.Equal(t, "https://example.com/tos", body["tos_uri"])
		assert.NotEmpty(t, body["session_id"])
	})

	t.Run("no study selected", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, entryRequest(""))

		require.Equal(t, http.StatusForbidden, rec.Code)
		var body map[string]any
		decode(t, rec, &body)
		assert.Equal(t, "missing", body["decision"])
		assert.Equal(t, registration.MsgStudyMissing, body["message_code"])
		assert.Nil(t, body["session_id"])
	})

	t.Run("unknown study", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, entryRequest("nope"))

		require.Equal(t, http.StatusForbidden, rec.Code)
		var body map[string]any
		decode(t, rec, &body)
		assert.Equal(t, "closed", body["decision"])
		assert.Equal(t, registration.MsgStudyNotOpen, body["message_code"])
		assert.Nil(t, body["session_id"])
	})

	t.Run("closed study", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.catalog.RemoveAttribute(context.Background(), "covid-cohort", study.AttrRegistrationLimit))

		rec := f.do(t, entryRequest("covid-cohort"))
		require.Equal(t, http.StatusForbidden, rec.Code)
		var body map[string]any
		decode(t, rec, &body)
		assert.Equal(t, registration.MsgStudyNotOpen, body["message_code"])
	})
}

func TestCommit(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		sessionID := f.beginSession(t)

		rec := f.do(t, commitRequest(sessionID, validForm()))
		require.Equal(t, http.StatusCreated, rec.Code)

		var body map[string]any
		decode(t, rec, &body)
		assert.NotEmpty(t, body["username"])
		assert.Equal(t, true, body["email_sent"])
		assert.Equal(t, true, body["email_delivered"])
		assert.Len(t, f.mailer.Messages(), 1)
	})

	t.Run("missing consent", func(t *testing.T) {
		f := newFixture(t)
		sessionID := f.beginSession(t)

		form := validForm()
		form.Del(registration.FieldTosConfirm)
		rec := f.do(t, commitRequest(sessionID, form))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body struct {
			MessageCodes []string `json:"message_codes"`
			Study        string   `json:"study"`
			Email        string   `json:"email"`
		}
		decode(t, rec, &body)
		assert.Equal(t, []string{registration.MsgConfirmTos}, body.MessageCodes)
		// Form input survives the round trip so the page can re-render it.
		assert.Equal(t, "covid-cohort", body.Study)
		assert.Equal(t, "proband@example.com", body.Email)
	})

	t.Run("bad session id", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, commitRequest("not-a-uuid", validForm()))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, commitRequest("00000000-0000-4000-8000-000000000001", validForm()))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestResend(t *testing.T) {
	resendRequest := func(sessionID string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/registration/"+sessionID+"/resend", nil)
	}

	t.Run("after delivery failure", func(t *testing.T) {
		f := newFixture(t)
		sessionID := f.beginSession(t)

		f.mailer.Fail = assert.AnError
		rec := f.do(t, commitRequest(sessionID, validForm()))
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Empty(t, f.mailer.Messages())

		f.mailer.Fail = nil
		rec = f.do(t, resendRequest(sessionID))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		decode(t, rec, &body)
		assert.Equal(t, true, body["email_delivered"])
		assert.Equal(t, "proband@example.com", body["email"])
		assert.Len(t, f.mailer.Messages(), 1)
	})

	t.Run("refresh deduplicates", func(t *testing.T) {
		f := newFixture(t)
		sessionID := f.beginSession(t)
		rec := f.do(t, commitRequest(sessionID, validForm()))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(t, resendRequest(sessionID))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		decode(t, rec, &body)
		assert.Equal(t, true, body["deduplicated"])
		assert.Len(t, f.mailer.Messages(), 1)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, resendRequest("00000000-0000-4000-8000-000000000001"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

// redeemPath extracts the path+query of the verification link.
func redeemPath(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Path + "?" + u.RawQuery
}

func TestActionToken(t *testing.T) {
	t.Run("continuing session verifies", func(t *testing.T) {
		f := newFixture(t)
		sessionID := f.beginSession(t)
		rec := f.do(t, commitRequest(sessionID, validForm()))
		require.Equal(t, http.StatusCreated, rec.Code)

		link := f.mailer.Messages()[0].Link
		rec = f.do(t, httptest.NewRequest(http.MethodGet, redeemPath(t, link), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		decode(t, rec, &body)
		assert.Equal(t, "verified", body["status"])
		assert.Equal(t, registration.MsgEmailVerifiedWithUsername, body["message_code"])
		assert.NotEmpty(t, body["username"])
	})

	t.Run("replayed link rebinds", func(t *testing.T) {
		f := newFixture(t)
		sessionID := f.beginSession(t)
		rec := f.do(t, commitRequest(sessionID, validForm()))
		require.Equal(t, http.StatusCreated, rec.Code)

		link := f.mailer.Messages()[0].Link
		rec = f.do(t, httptest.NewRequest(http.MethodGet, redeemPath(t, link), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, httptest.NewRequest(http.MethodGet, redeemPath(t, link), nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		decode(t, rec, &body)
		assert.Equal(t, "rebound", body["status"])
		confirm, _ := body["confirm_url"].(string)
		require.NotEmpty(t, confirm)

		// Following the confirmation link completes verification.
		rec = f.do(t, httptest.NewRequest(http.MethodGet, confirm, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &body)
		assert.Equal(t, "verified", body["status"])
	})

	t.Run("garbage token", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, httptest.NewRequest(http.MethodGet,
			"/registration/action-token?key=garbage&client_id=pia-web", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAdminLimit(t *testing.T) {
	setLimit := func(studyID, limit, token string) *http.Request {
		req := httptest.NewRequest(http.MethodPut,
			"/admin/studies/"+studyID+"/registration-limit",
			strings.NewReader(`{"limit":"`+limit+`"}`))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("X-Admin-Token", token)
		}
		return req
	}

	t.Run("requires token", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, setLimit("covid-cohort", "10", ""))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.do(t, setLimit("covid-cohort", "10", "wrong"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("opens a closed study", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.catalog.RemoveAttribute(context.Background(), "covid-cohort", study.AttrRegistrationLimit))

		rec := f.do(t, setLimit("covid-cohort", "10", adminToken))
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, entryRequest("covid-cohort"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("closes an open study", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodDelete,
			"/admin/studies/covid-cohort/registration-limit", nil)
		req.Header.Set("X-Admin-Token", adminToken)

		rec := f.do(t, req)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, entryRequest("covid-cohort"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown study", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, setLimit("nope", "10", adminToken))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
