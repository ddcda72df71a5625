// Package captcha issues the numeric challenge that gates self-registration.
// The expected answer lives in the caller's session; checking it is done by
// session.Manager.ConsumeCaptcha.
package captcha

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/platinummonkey/portalauth/pkg/httputil"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/platinummonkey/portalauth/pkg/session"
	"github.com/sirupsen/logrus"
)

const (
	// Width and Height of the rendered challenge in pixels
	Width  = 80
	Height = 30

	minValue = 1000
	maxValue = 9999
)

// Issuer serves GET /captcha
type Issuer struct {
	sessions *session.Manager
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
}

// NewIssuer creates an issuer storing answers through sessions
func NewIssuer(sessions *session.Manager, logger logrus.FieldLogger, metrics *observability.Metrics) *Issuer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Issuer{sessions: sessions, logger: logger, metrics: metrics}
}

// NewChallenge returns a uniformly random integer in [1000, 9999] as text
func NewChallenge() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxValue-minValue+1))
	if err != nil {
		return "", fmt.Errorf("captcha: random: %w", err)
	}
	return strconv.FormatInt(n.Int64()+minValue, 10), nil
}

// ServeHTTP stores a fresh answer in the session and returns it as a PNG
func (i *Issuer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), i.logger)

	value, err := NewChallenge()
	if err != nil {
		logger.WithError(err).Error("Failed to generate captcha")
		httputil.WriteInternalError(w)
		return
	}

	img, err := Render(value, Width, Height)
	if err != nil {
		logger.WithError(err).Error("Failed to render captcha")
		httputil.WriteInternalError(w)
		return
	}

	sess := i.sessions.Current(r)
	i.sessions.SetCaptcha(sess, value)
	if err := i.sessions.Save(r.Context(), w, sess); err != nil {
		logger.WithError(err).Error("Failed to save captcha answer")
		httputil.WriteInternalError(w)
		return
	}

	i.metrics.ObserveCaptcha()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}
