package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Grace reports whether a fresh backend session might not be visible yet, and
// lets a caller wait for it. *sessionbridge.Bridge implements it.
type Grace interface {
	InGracePeriod() bool
	Await(ctx context.Context) error
}

// AuthPolicy decides what happens when a privileged call is rejected with 401.
type AuthPolicy struct {
	// RetryOnceOn401 re-sends the request a single time while the session is in its grace period.
	RetryOnceOn401 bool
	// OnAuthFailure runs once when a 401 is final. The caller still gets the error.
	OnAuthFailure func(ctx context.Context, req *http.Request)
}

// authRetry wraps next with the 401 policy. It is the only place that retries
// on auth failure; individual calls never do.
func authRetry(next Doer, policy AuthPolicy, grace Grace, logger *slog.Logger) Doer {
	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := next.Do(req)
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}
		ctx := req.Context()
		if policy.RetryOnceOn401 && grace != nil && grace.InGracePeriod() {
			if retry, rerr := rewind(req); rerr == nil {
				drain(resp)
				// A failed exchange is reported by the bridge; the retry still decides.
				_ = grace.Await(ctx)
				logger.DebugContext(ctx, "retrying request after session grace", "path", req.URL.Path)
				resp, err = next.Do(retry)
				if err != nil || resp.StatusCode != http.StatusUnauthorized {
					return resp, err
				}
			}
		}
		if policy.OnAuthFailure != nil {
			policy.OnAuthFailure(ctx, req)
		}
		return resp, nil
	})
}

// rewind clones req for a second send. The Cookie header added by the jar on the
// first send is dropped so the jar supplies the current cookie.
func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	out.Header.Del("Cookie")
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body for %s cannot be replayed", req.URL.Path)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replay body: %w", err)
	}
	out.Body = body
	return out, nil
}
