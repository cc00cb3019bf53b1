package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/domain/guard"
	"github.com/target/towertrack-portal/internal/domain/nav"
)

// guardCase is one column of the matrix: an identity plus its role state.
type guardCase struct {
	label    string
	identity domainauth.IdentitySnapshot
	role     domainauth.RoleState
}

const sampleKey = "resident@example.com"

func guardCases() []guardCase {
	signedIn := domainauth.IdentitySnapshot{
		Status:   domainauth.StatusAuthenticated,
		Identity: &domainauth.Identity{Email: sampleKey},
	}
	resolved := func(r domainauth.Role) domainauth.RoleState {
		return domainauth.RoleState{Status: domainauth.RoleStatusResolved, Key: sampleKey, Role: r}
	}
	return []guardCase{
		{label: "initializing", identity: domainauth.IdentitySnapshot{Status: domainauth.StatusInitializing}},
		{label: "anonymous", identity: domainauth.IdentitySnapshot{Status: domainauth.StatusAnonymous}},
		{label: "loading", identity: signedIn, role: domainauth.RoleState{Status: domainauth.RoleStatusLoading, Key: sampleKey}},
		{label: "error", identity: signedIn, role: domainauth.RoleState{Status: domainauth.RoleStatusError, Key: sampleKey}},
		{label: "user", identity: signedIn, role: resolved(domainauth.RoleUser)},
		{label: "member", identity: signedIn, role: resolved(domainauth.RoleMember)},
		{label: "admin", identity: signedIn, role: resolved(domainauth.RoleAdmin)},
	}
}

type guardRow struct {
	Guard     string            `json:"guard"`
	Accepts   []string          `json:"accepts,omitempty"`
	Pages     []string          `json:"pages,omitempty"`
	Decisions map[string]string `json:"decisions"`
}

func guardMatrix() []guardRow {
	pagesByGuard := map[string][]string{}
	for _, page := range nav.Pages() {
		if g, ok := nav.PageGuard(page); ok {
			pagesByGuard[g.Name()] = append(pagesByGuard[g.Name()], page)
		}
	}
	cases := guardCases()
	rows := make([]guardRow, 0, len(guard.All()))
	for _, g := range guard.All() {
		row := guardRow{Guard: g.Name(), Pages: pagesByGuard[g.Name()], Decisions: make(map[string]string, len(cases))}
		for _, r := range g.AcceptedRoles() {
			row.Accepts = append(row.Accepts, r.String())
		}
		for _, c := range cases {
			out := g.Evaluate(guard.Input{Identity: c.identity, Role: c.role, Path: "/dashboard"})
			row.Decisions[c.label] = out.Decision.String()
		}
		rows = append(rows, row)
	}
	return rows
}

func runGuards(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("guards", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asJSON := fs.Bool("json", false, "Print the matrix as JSON")
	menus := fs.Bool("menus", false, "Print the dashboard menu of each role instead")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *menus {
		return printMenus(cmdCtx.Out, roleMenus(), *asJSON)
	}
	return printGuardMatrix(cmdCtx.Out, guardMatrix(), *asJSON)
}

type roleMenu struct {
	Role    string      `json:"role"`
	Entries []nav.Entry `json:"entries"`
}

func roleMenus() []roleMenu {
	roles := []domainauth.Role{domainauth.RoleUser, domainauth.RoleMember, domainauth.RoleAdmin}
	out := make([]roleMenu, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleMenu{Role: r.String(), Entries: nav.ForRole(r)})
	}
	return out
}

func printMenus(out io.Writer, menus []roleMenu, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(menus)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writef(w, "Role\tPath\tLabel\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, m := range menus {
		for _, e := range m.Entries {
			if err := writef(w, "%s\t%s\t%s\n", m.Role, e.Path, e.Label); err != nil {
				return fmt.Errorf("write menu %q: %w", m.Role, err)
			}
		}
	}
	return w.Flush()
}

func printGuardMatrix(out io.Writer, rows []guardRow, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	cases := guardCases()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writef(w, "Guard"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, c := range cases {
		if err := writef(w, "\t%s", c.label); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := writef(w, "\tAccepts\tPages\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := writef(w, "%s", row.Guard); err != nil {
			return fmt.Errorf("write row %q: %w", row.Guard, err)
		}
		for _, c := range cases {
			if err := writef(w, "\t%s", row.Decisions[c.label]); err != nil {
				return fmt.Errorf("write row %q: %w", row.Guard, err)
			}
		}
		accepts, pages := "any", "-"
		if len(row.Accepts) > 0 {
			accepts = strings.Join(row.Accepts, ",")
		}
		if len(row.Pages) > 0 {
			pages = fmt.Sprint(row.Pages)
		}
		if err := writef(w, "\t%s\t%s\n", accepts, pages); err != nil {
			return fmt.Errorf("write row %q: %w", row.Guard, err)
		}
	}
	return w.Flush()
}
