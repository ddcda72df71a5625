package captcha

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/platinummonkey/portalauth/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChallenge(t *testing.T) {
	for i := 0; i < 500; i++ {
		v, err := NewChallenge()
		require.NoError(t, err)
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1000)
		assert.LessOrEqual(t, n, 9999)
	}
}

func TestRender(t *testing.T) {
	data, err := Render("1234", Width, Height)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Width, img.Bounds().Dx())
	assert.Equal(t, Height, img.Bounds().Dy())

	inked := 0
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				inked++
			}
		}
	}
	assert.Greater(t, inked, 0)
	assert.Less(t, inked, Width*Height/2, "background must stay mostly transparent")
}

func TestRender_DistinctDigits(t *testing.T) {
	a, err := Render("1111", Width, Height)
	require.NoError(t, err)
	b, err := Render("8888", Width, Height)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRender_Errors(t *testing.T) {
	_, err := Render("", Width, Height)
	assert.Error(t, err)
	_, err = Render("12a4", Width, Height)
	assert.Error(t, err)
	_, err = Render("1234", 0, Height)
	assert.Error(t, err)
}

func TestIssuer_ServeHTTP(t *testing.T) {
	manager, err := session.NewManager(session.NewMemoryStore(10, time.Hour), session.Options{Secret: []byte("s")})
	require.NoError(t, err)
	issuer := NewIssuer(manager, nil, nil)

	var answer string
	rr := httptest.NewRecorder()
	handler := manager.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issuer.ServeHTTP(w, r)
		answer = session.FromContext(r.Context()).State.CaptchaAnswer
	}))
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/captcha", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, must-revalidate", rr.Header().Get("Cache-Control"))
	assert.Len(t, answer, 4)

	_, err = png.Decode(bytes.NewReader(rr.Body.Bytes()))
	assert.NoError(t, err)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == manager.CookieName() {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "answer must be persisted with the session")

	t.Run("answer readable on next request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/register", nil)
		req.AddCookie(cookie)
		manager.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, answer, session.FromContext(r.Context()).State.CaptchaAnswer)
		})).ServeHTTP(httptest.NewRecorder(), req)
	})
}
