package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Slack endpoints
const (
	SlackAuthURL     = "https://slack.com/oauth/authorize"
	SlackTokenURL    = "https://slack.com/api/oauth.access"
	SlackIdentityURL = "https://slack.com/api/users.identity"
)

// SlackConfig holds the decrypted client settings. The URL fields default to
// Slack's public endpoints.
type SlackConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TeamID       string

	AuthURL     string
	TokenURL    string
	IdentityURL string
}

// SlackResolver logs in members of a single Slack workspace
type SlackResolver struct {
	oauth2Config *oauth2.Config
	identityURL  string
	teamID       string
	logger       logrus.FieldLogger
}

type slackIdentity struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  *struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
	Team *struct {
		ID string `json:"id"`
	} `json:"team"`
}

// NewSlackResolver creates a resolver restricted to cfg.TeamID
func NewSlackResolver(cfg SlackConfig, logger logrus.FieldLogger) (*SlackResolver, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("slack: client id and secret are required")
	}
	if cfg.TeamID == "" {
		return nil, fmt.Errorf("slack: team id is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &SlackResolver{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"identity.basic"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   orDefault(cfg.AuthURL, SlackAuthURL),
				TokenURL:  orDefault(cfg.TokenURL, SlackTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		identityURL: orDefault(cfg.IdentityURL, SlackIdentityURL),
		teamID:      cfg.TeamID,
		logger:      logger,
	}, nil
}

// Name returns "slack"
func (s *SlackResolver) Name() string {
	return "slack"
}

// LoginURL returns Slack's authorize URL carrying state
func (s *SlackResolver) LoginURL(state string) string {
	return s.oauth2Config.AuthCodeURL(state)
}

// Callback exchanges the code, fetches the user's identity and checks the
// workspace.
func (s *SlackResolver) Callback(ctx context.Context, r *http.Request) (*Identity, error) {
	logger := observability.FromContext(ctx, s.logger).WithField("provider", s.Name())

	code, err := callbackCode(r)
	if err != nil {
		logger.WithError(err).Warn("Slack callback rejected")
		return nil, authError("callback", err)
	}

	token, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		logger.WithError(err).Warn("Slack code exchange failed")
		return nil, authError("exchange", err)
	}

	profile, err := s.fetchIdentity(ctx, token)
	if err != nil {
		logger.WithError(err).Error("Slack authentication error occurred")
		return nil, authError("users.identity", err)
	}

	if profile.User == nil {
		logger.WithField("slack_error", profile.Error).Error("Slack authentication error occurred")
		return nil, authError("profile without user", nil)
	}
	if profile.Team == nil || profile.Team.ID != s.teamID {
		teamID := ""
		if profile.Team != nil {
			teamID = profile.Team.ID
		}
		logger.WithField("team_id", teamID).Warn("Invalid team id")
		return nil, authError("team mismatch", nil)
	}

	given, family := splitName(profile.User.Name)
	return &Identity{
		AccountID:  SlackPrefix + profile.User.ID,
		GivenName:  given,
		FamilyName: family,
		Email:      profile.User.Email,
	}, nil
}

func (s *SlackResolver) fetchIdentity(ctx context.Context, token *oauth2.Token) (*slackIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.identityURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var profile slackIdentity
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &profile, nil
}

// splitName takes the first two space separated words as given and family
// name.
func splitName(name string) (string, string) {
	parts := strings.Split(name, " ")
	var given, family string
	if len(parts) >= 1 {
		given = parts[0]
	}
	if len(parts) >= 2 {
		family = parts[1]
	}
	return given, family
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
