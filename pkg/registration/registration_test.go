package registration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/portalauth/pkg/audit"
	"github.com/platinummonkey/portalauth/pkg/credentials"
	"github.com/platinummonkey/portalauth/pkg/httputil"
	"github.com/platinummonkey/portalauth/pkg/password"
	"github.com/platinummonkey/portalauth/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAnswer = "4821"

type fixture struct {
	handler  http.Handler
	store    *credentials.Store
	sessions *session.Manager
	hasher   password.Hasher
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()
	sessions, err := session.NewManager(session.NewMemoryStore(100, time.Hour), session.Options{Secret: []byte("secret")})
	require.NoError(t, err)

	f := &fixture{
		sessions: sessions,
		hasher:   password.NewArgon2Hasher(password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLength: 32}),
	}
	if withStore {
		f.store, err = credentials.Load(filepath.Join(t.TempDir(), "users.json"), nil)
		require.NoError(t, err)
	}
	f.handler = sessions.Middleware(NewHandler(f.store, sessions, f.hasher, nil, nil))
	return f
}

// primeCaptcha returns a session cookie whose expected captcha is testAnswer
func (f *fixture) primeCaptcha(t *testing.T) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	f.sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.sessions.SetCaptcha(session.FromContext(r.Context()), testAnswer)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/captcha", nil))

	for _, c := range rr.Result().Cookies() {
		if c.Name == f.sessions.CookieName() {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func (f *fixture) post(t *testing.T, cookie *http.Cookie, body string) httputil.APIResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	var resp httputil.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	assert.Equal(t, rr.Code, resp.Status)
	return resp
}

func newUserBody(fields map[string]interface{}) string {
	base := map[string]interface{}{
		"username":   "bob1",
		"password":   "Abcdefg1",
		"givenName":  "Bob",
		"familyName": "O'Builder-Smith",
		"captcha":    testAnswer,
	}
	for k, v := range fields {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	b, _ := json.Marshal(map[string]interface{}{"newUser": base})
	return string(b)
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t, true)
	cookie := f.primeCaptcha(t)

	resp := f.post(t, cookie, newUserBody(nil))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, MessageCreated, resp.StatusMessage)

	entry, ok := f.store.Lookup("bob1")
	require.True(t, ok)
	assert.Equal(t, "Bob", entry.GivenName)
	assert.Equal(t, "O'Builder-Smith", entry.FamilyName)
	assert.NotEmpty(t, entry.PassSalt)
	assert.Equal(t, f.hasher.Hash("Abcdefg1", entry.PassSalt), entry.PassHash)
	assert.NotContains(t, entry.PassHash, "Abcdefg1")

	data, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n\t\"bob1\"")

	t.Run("replay with the same captcha fails", func(t *testing.T) {
		resp := f.post(t, cookie, newUserBody(map[string]interface{}{"username": "bob2"}))
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, ReasonInvalidCaptcha, resp.StatusMessage)
		assert.False(t, f.store.Exists("bob2"))
	})

	t.Run("existing username", func(t *testing.T) {
		before, _ := os.ReadFile(f.store.Path())
		resp := f.post(t, f.primeCaptcha(t), newUserBody(map[string]interface{}{"password": "Zyxwvut9"}))
		assert.Equal(t, ReasonUsernameTaken, resp.StatusMessage)

		after, _ := os.ReadFile(f.store.Path())
		assert.Equal(t, before, after)
		entry2, _ := f.store.Lookup("bob1")
		assert.Equal(t, entry, entry2)
	})
}

func TestRegister_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"no body", ``, ReasonMissingNewUser},
		{"invalid json", `{"newUser":`, ReasonMissingNewUser},
		{"missing newUser", `{}`, ReasonMissingNewUser},
		{"null newUser", `{"newUser":null}`, ReasonMissingNewUser},
		{"missing username", newUserBody(map[string]interface{}{"username": nil}), ReasonInvalidUsername},
		{"empty username", newUserBody(map[string]interface{}{"username": ""}), ReasonInvalidUsername},
		{"username with symbols", newUserBody(map[string]interface{}{"username": "bob_1"}), ReasonInvalidUsername},
		{"username with space", newUserBody(map[string]interface{}{"username": "bob 1"}), ReasonInvalidUsername},
		{"missing password", newUserBody(map[string]interface{}{"password": nil}), ReasonMissingPassword},
		{"all lowercase", newUserBody(map[string]interface{}{"password": "abcdefgh"}), ReasonWeakPassword},
		{"too short", newUserBody(map[string]interface{}{"password": "Abcde1"}), ReasonWeakPassword},
		{"no digit", newUserBody(map[string]interface{}{"password": "Abcdefgh"}), ReasonWeakPassword},
		{"no upper", newUserBody(map[string]interface{}{"password": "abcdefg1"}), ReasonWeakPassword},
		{"missing givenName", newUserBody(map[string]interface{}{"givenName": nil}), ReasonInvalidGivenName},
		{"digits in givenName", newUserBody(map[string]interface{}{"givenName": "B0b"}), ReasonInvalidGivenName},
		{"markup in familyName", newUserBody(map[string]interface{}{"familyName": "<b>"}), ReasonInvalidFamily},
		{"missing familyName", newUserBody(map[string]interface{}{"familyName": nil}), ReasonInvalidFamily},
		{"missing captcha", newUserBody(map[string]interface{}{"captcha": nil}), ReasonInvalidCaptcha},
		{"wrong captcha", newUserBody(map[string]interface{}{"captcha": "0000"}), ReasonInvalidCaptcha},
		{"weak password reported before bad name", newUserBody(map[string]interface{}{"password": "abc", "givenName": "1"}), ReasonWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			resp := f.post(t, f.primeCaptcha(t), tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.Equal(t, tt.reason, resp.StatusMessage)
			assert.Equal(t, 0, f.store.Len())
		})
	}
}

type recordingAuditor struct {
	events []*audit.AuditEvent
}

func (r *recordingAuditor) Log(_ context.Context, event *audit.AuditEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAuditor) Close() error { return nil }

func TestRegister_Audit(t *testing.T) {
	f := newFixture(t, true)
	auditor := &recordingAuditor{}
	f.handler = f.sessions.Middleware(NewHandler(f.store, f.sessions, f.hasher, nil, nil).WithAudit(auditor))

	f.post(t, f.primeCaptcha(t), newUserBody(map[string]interface{}{"username": "bad name"}))
	f.post(t, f.primeCaptcha(t), newUserBody(nil))

	require.Len(t, auditor.events, 2)
	assert.Equal(t, audit.EventTypeAuthRegisterFailed, auditor.events[0].EventType)
	assert.Equal(t, audit.EventStatusFailure, auditor.events[0].Status)
	assert.Equal(t, ReasonInvalidUsername, auditor.events[0].Message)
	assert.Equal(t, "bad name", auditor.events[0].Username)

	assert.Equal(t, audit.EventTypeAuthRegister, auditor.events[1].EventType)
	assert.Equal(t, audit.EventStatusSuccess, auditor.events[1].Status)
	assert.Equal(t, "bob1", auditor.events[1].Username)
	assert.Equal(t, "local", auditor.events[1].Provider)
}

func TestRegister_LocalDisabled(t *testing.T) {
	f := newFixture(t, false)
	resp := f.post(t, nil, newUserBody(nil))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, ReasonLocalDisabled, resp.StatusMessage)
}

func TestRegister_CaptchaRotatedOnFailure(t *testing.T) {
	f := newFixture(t, true)
	cookie := f.primeCaptcha(t)

	resp := f.post(t, cookie, newUserBody(map[string]interface{}{"captcha": "0000"}))
	require.Equal(t, ReasonInvalidCaptcha, resp.StatusMessage)

	// the right answer no longer works once a guess has been made
	resp = f.post(t, cookie, newUserBody(nil))
	assert.Equal(t, ReasonInvalidCaptcha, resp.StatusMessage)
	assert.False(t, f.store.Exists("bob1"))
}

func TestRegister_CaptchaUntouchedByEarlierFailures(t *testing.T) {
	f := newFixture(t, true)
	cookie := f.primeCaptcha(t)

	resp := f.post(t, cookie, newUserBody(map[string]interface{}{"password": "weak"}))
	require.Equal(t, ReasonWeakPassword, resp.StatusMessage)

	resp = f.post(t, cookie, newUserBody(nil))
	assert.Equal(t, MessageCreated, resp.StatusMessage)
}

func TestRegister_StoreFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	f := newFixture(t, true)
	cookie := f.primeCaptcha(t)
	require.NoError(t, os.Chmod(filepath.Dir(f.store.Path()), 0o500))
	t.Cleanup(func() { _ = os.Chmod(filepath.Dir(f.store.Path()), 0o700) })

	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(newUserBody(nil)))
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, f.store.Exists("bob1"))
}

func TestRegister_Direct(t *testing.T) {
	f := newFixture(t, true)
	h := NewHandler(f.store, f.sessions, f.hasher, nil, nil)

	sess := f.sessions.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	err := h.Register(context.Background(), httptest.NewRecorder(), sess, &Request{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonMissingNewUser, verr.Reason)
	assert.Contains(t, verr.Error(), ReasonMissingNewUser)
}

func TestStrongPassword(t *testing.T) {
	assert.True(t, StrongPassword("Abcdefg1"))
	assert.True(t, StrongPassword("xY3-long-enough"))
	assert.False(t, StrongPassword("ABCDEFG1"))
	assert.False(t, StrongPassword(""))
}
