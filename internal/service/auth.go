package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

// federatedFlowTTL bounds how long a started federated sign-in stays valid.
const federatedFlowTTL = 10 * time.Minute

// SignInWithCredentials authenticates an email/password pair and publishes the identity.
func (p *Portal) SignInWithCredentials(ctx context.Context, email, password string) (domainauth.Identity, error) {
	in := ports.CredentialsInput{Email: domainauth.NormalizeKey(email), Password: password}
	if err := validateStruct(p.reg.validate, in); err != nil {
		return domainauth.Identity{}, err
	}
	res, err := p.reg.opts.Provider.SignInWithCredentials(ctx, in)
	if err != nil {
		p.logger.InfoContext(ctx, "credential sign-in failed", "code", apperrors.GetCode(err), "error", err)
		return domainauth.Identity{}, err
	}
	return p.signedIn(ctx, res)
}

// BeginFederated starts a provider sign-in and returns the URL to send the browser to.
// returnTo is where CompleteFederated sends the user afterwards.
func (p *Portal) BeginFederated(ctx context.Context, returnTo string) (string, error) {
	if returnTo == "" {
		returnTo = "/"
	}
	authURL, state, nonce, err := p.reg.opts.Provider.Begin(ctx, ports.BeginInput{RedirectURL: returnTo})
	if err != nil {
		return "", fmt.Errorf("begin federated sign-in: %w", err)
	}
	p.mu.Lock()
	p.flow = &federatedFlow{state: state, nonce: nonce, returnTo: returnTo, started: p.reg.now()}
	p.mu.Unlock()
	return authURL, nil
}

// CallbackInput carries the provider's callback parameters.
type CallbackInput struct {
	Code  string
	State string
	Error string
}

// CompleteFederated finishes the provider sign-in started by BeginFederated and
// returns the path the user originally asked for.
func (p *Portal) CompleteFederated(ctx context.Context, in CallbackInput) (string, error) {
	p.mu.Lock()
	flow := p.flow
	p.flow = nil
	p.mu.Unlock()

	if flow == nil || p.reg.now().Sub(flow.started) > federatedFlowTTL {
		return "", apperrors.Unauthenticated("no sign-in in progress")
	}
	// A cancelled popup is reported before the state check; the provider may omit state.
	if in.Error == "" && in.State != flow.state {
		return "", apperrors.Unauthenticated("sign-in state mismatch")
	}

	res, err := p.reg.opts.Provider.Exchange(ctx, ports.ExchangeInput{
		Code:  in.Code,
		State: in.State,
		Nonce: flow.nonce,
		Error: in.Error,
	})
	if err != nil {
		if apperrors.IsPopupClosed(err) {
			p.logger.InfoContext(ctx, "federated sign-in cancelled")
		} else {
			p.logger.WarnContext(ctx, "federated sign-in failed", "error", err)
		}
		return "", err
	}
	if _, err := p.signedIn(ctx, res); err != nil {
		return "", err
	}
	return flow.returnTo, nil
}

// signedIn persists the session record and publishes the identity. Publishing
// triggers the backend session exchange and the role lookup.
func (p *Portal) signedIn(ctx context.Context, res ports.SignInResult) (domainauth.Identity, error) {
	if p.isClosed() {
		return domainauth.Identity{}, apperrors.Unauthenticated("portal closed")
	}
	id := res.Identity
	id.Email = domainauth.NormalizeKey(id.Email)
	if id.Email == "" {
		return domainauth.Identity{}, apperrors.Unauthenticated("identity has no email")
	}
	if id.ExpiresAt.IsZero() {
		id.ExpiresAt = p.reg.now().Add(p.reg.opts.SessionTTL)
	}

	sess := domainauth.Session{ID: p.id, Identity: id, ProviderToken: res.Token, ExpiresAt: id.ExpiresAt}
	if err := p.reg.opts.Sessions.Save(ctx, sess); err != nil {
		// The portal still works in memory; only restore after restart is lost.
		p.logger.WarnContext(ctx, "save session record failed", "error", err)
	}

	p.mu.Lock()
	p.token = res.Token
	p.mu.Unlock()
	p.ids.SetIdentity(id)
	p.reg.metrics.SessionOp("sign_in", nil)
	p.logger.InfoContext(ctx, "signed in", "user", id.Key())

	if p.reg.opts.EnsureProfile {
		p.goBackground(func(ctx context.Context) { p.ensureProfile(ctx, id) })
	}
	return id, nil
}

// ensureProfile creates the backend user record on first sign-in. Failures are logged only.
func (p *Portal) ensureProfile(ctx context.Context, id domainauth.Identity) {
	ctx, cancel := context.WithTimeout(ctx, p.reg.opts.ProfileTimeout)
	defer cancel()
	if err := p.bridge.Await(ctx); err != nil {
		p.logger.WarnContext(ctx, "skip profile check", "error", err)
		return
	}
	prof := p.profiles()
	exists, err := prof.ProfileExists(ctx, id.Email)
	if err != nil {
		p.logger.WarnContext(ctx, "profile lookup failed", "error", err)
		return
	}
	if exists {
		return
	}
	rec := ports.Profile{Name: id.DisplayName, Email: id.Email, Photo: id.AvatarURL, Role: domainauth.RoleUser}
	if err := validateStruct(p.reg.validate, rec); err != nil {
		p.logger.WarnContext(ctx, "profile record invalid", "error", err)
		return
	}
	if err := prof.CreateProfile(ctx, rec); err != nil {
		p.logger.WarnContext(ctx, "create profile failed", "error", err)
		return
	}
	p.logger.InfoContext(ctx, "created profile record", "user", id.Key())
}

func (p *Portal) profiles() ports.ProfileDirectory {
	if p.reg.opts.Profiles != nil {
		return p.reg.opts.Profiles
	}
	return p.api
}

// SignOut clears the local identity first, so guards deny immediately, and then
// revokes the backend session and the session record. Remote failures come back
// as a warning; the portal is signed out regardless.
func (p *Portal) SignOut(ctx context.Context) error {
	return p.endSession(ctx, "sign_out", "signed out")
}

// expireIfDue signs the portal out once the identity is past its expiry. It
// reports whether it did.
func (p *Portal) expireIfDue(ctx context.Context) bool {
	snap := p.ids.Snapshot()
	if !snap.IsAuthenticated() || snap.Identity.ExpiresAt.IsZero() || !p.reg.now().After(snap.Identity.ExpiresAt) {
		return false
	}
	_ = p.endSession(ctx, "expire", "session expired")
	return true
}

func (p *Portal) endSession(ctx context.Context, op, msg string) error {
	prev := p.ids.Snapshot()
	p.mu.Lock()
	p.token = ""
	p.flow = nil
	p.mu.Unlock()

	snap := p.ids.Clear()
	p.reg.metrics.SessionOp(op, nil)
	if !prev.IsAuthenticated() {
		return nil
	}

	var errs []error
	if err := p.bridge.Teardown(ctx, snap.Generation); err != nil {
		errs = append(errs, err)
	}
	if err := p.reg.opts.Sessions.Delete(context.WithoutCancel(ctx), p.id); err != nil {
		errs = append(errs, apperrors.WrapTransport(err, "delete session record"))
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.WarnContext(ctx, msg+" with warnings", "user", prev.Key(), "error", err)
		return err
	}
	p.logger.InfoContext(ctx, msg, "user", prev.Key())
	return nil
}

// Restore replays a persisted session record, or publishes anonymous when there is
// none. Either way it is the portal's first identity event.
func (p *Portal) Restore(ctx context.Context) {
	sess, err := p.reg.opts.Sessions.Get(ctx, p.id)
	switch {
	case err != nil:
		if !apperrors.IsNotFound(err) {
			p.logger.WarnContext(ctx, "restore session failed", "error", err)
		}
		p.ids.Clear()
	case sess.Expired(p.reg.now()):
		if derr := p.reg.opts.Sessions.Delete(ctx, p.id); derr != nil {
			p.logger.WarnContext(ctx, "delete expired session", "error", derr)
		}
		p.ids.Clear()
	default:
		p.mu.Lock()
		p.token = sess.ProviderToken
		p.mu.Unlock()
		p.ids.SetIdentity(sess.Identity)
		p.logger.DebugContext(ctx, "restored session", "user", sess.Identity.Key())
	}
}
