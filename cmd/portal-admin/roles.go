package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/target/towertrack-portal/internal/adapters/authroles"
	"github.com/target/towertrack-portal/internal/adapters/backend"
	redisadapter "github.com/target/towertrack-portal/internal/adapters/redis"
	"github.com/target/towertrack-portal/internal/bootstrap"
	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/ports"
)

const defaultCommandTimeout = 30 * time.Second

type roleOptions struct {
	Email   string
	Token   string
	As      string
	JSON    bool
	Timeout time.Duration
}

type invalidateOptions struct {
	Email string
	Yes   bool
}

// splitPositional lets the email come before or after the flags.
func splitPositional(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func parseRoleFlags(args []string) (roleOptions, error) {
	email, rest := splitPositional(args)
	fs := flag.NewFlagSet("role", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := roleOptions{Email: email}
	fs.StringVar(&opts.Token, "token", os.Getenv("PORTAL_ADMIN_TOKEN"), "Operator token exchanged at POST /jwt")
	fs.StringVar(&opts.As, "as", os.Getenv("PORTAL_ADMIN_EMAIL"), "Operator email (BACKEND_CREDENTIAL=email)")
	fs.BoolVar(&opts.JSON, "json", false, "Print the result as JSON")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Overall timeout")
	if err := fs.Parse(rest); err != nil {
		return roleOptions{}, err
	}
	if opts.Email == "" {
		opts.Email = fs.Arg(0)
	}
	opts.Email = domainauth.NormalizeKey(opts.Email)
	if opts.Email == "" {
		return roleOptions{}, errors.New("usage: portal-admin role <email> [-token T | -as operator@example.com]")
	}
	return opts, nil
}

func parseInvalidateFlags(args []string) (invalidateOptions, error) {
	email, rest := splitPositional(args)
	fs := flag.NewFlagSet("invalidate-role", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := invalidateOptions{Email: email}
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	if err := fs.Parse(rest); err != nil {
		return invalidateOptions{}, err
	}
	if opts.Email == "" {
		opts.Email = fs.Arg(0)
	}
	opts.Email = domainauth.NormalizeKey(opts.Email)
	if opts.Email == "" {
		return invalidateOptions{}, errors.New("usage: portal-admin invalidate-role <email> [-yes]")
	}
	return opts, nil
}

func runRole(cmdCtx *commandContext, args []string) error {
	opts, err := parseRoleFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	src, cleanup, err := roleSourceFor(ctx, cmdCtx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := src.FetchRole(ctx, opts.Email)
	if err != nil {
		return fmt.Errorf("resolve role for %s: %w", opts.Email, err)
	}
	if opts.JSON {
		return json.NewEncoder(cmdCtx.Out).Encode(map[string]string{"email": opts.Email, "role": r.String()})
	}
	return writef(cmdCtx.Out, "%s\t%s\n", opts.Email, r)
}

// roleSourceFor returns the configured static roles, or a backend client holding
// an operator session. cleanup revokes that session.
func roleSourceFor(ctx context.Context, cmdCtx *commandContext, opts roleOptions) (ports.RoleSource, func(), error) {
	cfg := cmdCtx.Config
	if cfg.Roles.UsesStaticRoles() {
		def, _ := domainauth.ParseRole(cfg.Roles.StaticDefault)
		src, err := authroles.ParseStaticRoles(cfg.Roles.Static, def)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	}

	client, err := backend.NewClient(backend.Options{
		BaseURL:    cfg.Backend.BaseURL,
		Timeout:    cfg.Backend.Timeout,
		Credential: backend.CredentialMode(cfg.Backend.Credential),
		Logger:     cmdCtx.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	cred := ports.SessionCredential{Token: opts.Token, Email: domainauth.NormalizeKey(opts.As)}
	if err := client.Establish(ctx, cred); err != nil {
		return nil, nil, fmt.Errorf("establish operator session: %w", err)
	}
	cleanup := func() {
		if err := client.Revoke(context.WithoutCancel(ctx)); err != nil {
			cmdCtx.Logger.WarnContext(ctx, "revoke operator session failed", "error", err)
		}
	}
	api, err := client.API(backend.AuthPolicy{}, nil, backend.RoleOptions{
		Expression:    cfg.Roles.Expression,
		MissingIsUser: cfg.Roles.MissingIsUser,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return api, cleanup, nil
}

func runInvalidateRole(cmdCtx *commandContext, args []string) error {
	opts, err := parseInvalidateFlags(args)
	if err != nil {
		return err
	}
	if !opts.Yes {
		if err := confirm(cmdCtx, fmt.Sprintf("About to drop the cached role for %s.", opts.Email)); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	client, err := bootstrap.ConnectRedis(ctx, bootstrap.RedisConfig{Redis: cmdCtx.Config.Redis, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	cache := redisadapter.NewRoleCache(client, cmdCtx.Config.Roles.CachePrefix)
	return invalidateRole(ctx, cmdCtx.Out, cache, opts.Email, cmdCtx.Config.Roles.TTL)
}

func invalidateRole(ctx context.Context, out io.Writer, cache ports.RoleCache, email string, localTTL time.Duration) error {
	_, found, err := cache.Get(ctx, email)
	if err != nil {
		return fmt.Errorf("read cached role: %w", err)
	}
	if err := cache.Delete(ctx, email); err != nil {
		return fmt.Errorf("delete cached role: %w", err)
	}
	if !found {
		return writef(out, "No cached role for %s.\n", email)
	}
	// Live portals keep their in-process copy until its TTL lapses.
	return writef(out, "Dropped cached role for %s. Running portals pick it up within %s.\n", email, localTTL)
}

func confirm(cmdCtx *commandContext, intro string) error {
	if err := writeln(cmdCtx.Out, intro); err != nil {
		return fmt.Errorf("print confirmation message: %w", err)
	}
	if err := writef(cmdCtx.Out, "Continue? [y/N]: "); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(cmdCtx.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if ans := strings.ToLower(strings.TrimSpace(resp)); ans != "y" && ans != "yes" {
		return errors.New("aborted by user")
	}
	return nil
}
