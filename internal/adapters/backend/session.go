package backend

import (
	"context"
	"net/http"

	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

var _ ports.SessionBackend = (*Client)(nil)

type jwtRequest struct {
	Token string `json:"token,omitempty"`
	Email string `json:"email,omitempty"`
}

// Establish exchanges the credential at POST /jwt. The backend answers with a
// session cookie that the portal's jar keeps for later calls.
func (c *Client) Establish(ctx context.Context, cred ports.SessionCredential) error {
	body := jwtRequest{Token: cred.Token}
	if c.mode == CredentialEmail {
		body = jwtRequest{Email: cred.Email}
	}
	if body.Token == "" && body.Email == "" {
		return apperrors.ValidationField(string(c.mode), "session credential is empty")
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(nil, "jwt"), body)
	if err != nil {
		return err
	}
	if err := c.call(c, req, nil); err != nil {
		return err
	}
	if !c.HasSession() {
		c.logger.WarnContext(ctx, "session exchange returned no cookie")
	}
	return nil
}

// Revoke calls POST /logout and empties the jar whether or not the call succeeds.
func (c *Client) Revoke(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(nil, "logout"), nil)
	if err != nil {
		return err
	}
	callErr := c.call(c, req, nil)
	if err := c.jar.Reset(); err != nil {
		c.logger.WarnContext(ctx, "reset cookie jar failed", "error", err)
	}
	return callErr
}
