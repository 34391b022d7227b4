// Package gate decides, per navigation, whether a session may see a protected
// destination.
package gate

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/jrsteele09/betul-abla-portal/session"
	"github.com/rs/zerolog/log"
)

// LoginPath is where anonymous sessions are sent.
const LoginPath = "/login"

// Outcome is the kind of access decision.
type Outcome int

const (
	Allow Outcome = iota
	Loading
	RedirectLogin
	RedirectHome
	Deactivated
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case Deactivated:
		return "deactivated"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision is the result of evaluating one navigation.
// Location is set for the redirect outcomes.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Snapshot is the session state the gate reads.
type Snapshot struct {
	State    session.State
	Identity *identity.Identity
}

// SnapshotOf reads a consistent snapshot from a session manager.
func SnapshotOf(m *session.Manager) Snapshot {
	state, id := m.Snapshot()
	return Snapshot{State: state, Identity: id}
}

// Policy maps protected destinations to the roles allowed to reach them.
type Policy struct {
	allowed map[string][]identity.Role
}

// NewPolicy builds a policy. Every destination needs at least one role.
func NewPolicy(rules map[string][]identity.Role) (*Policy, error) {
	p := &Policy{allowed: make(map[string][]identity.Role, len(rules))}
	for dest, roles := range rules {
		if len(roles) == 0 {
			return nil, fmt.Errorf("[gate NewPolicy] destination %q has an empty allow-list", dest)
		}
		p.allowed[normalise(dest)] = append([]identity.Role(nil), roles...)
	}
	return p, nil
}

// DefaultPolicy is the portal's route table.
func DefaultPolicy() *Policy {
	all := identity.Roles
	managers := []identity.Role{identity.RoleAdmin, identity.RoleCoordinator}
	p, err := NewPolicy(map[string][]identity.Role{
		"/admin":           {identity.RoleAdmin},
		"/admin/orphans":   managers,
		"/admin/boreholes": managers,
		"/admin/reports":   managers,
		"/admin/users":     {identity.RoleAdmin},
		"/coordinator":     managers,
		"/staff":           all,
		"/account":         all,
	})
	if err != nil {
		panic(err)
	}
	return p
}

// Allowed returns the allow-list for dest and whether dest is protected.
func (p *Policy) Allowed(dest string) ([]identity.Role, bool) {
	roles, ok := p.allowed[normalise(dest)]
	return roles, ok
}

// Destinations lists the protected destinations in order.
func (p *Policy) Destinations() []string {
	out := make([]string, 0, len(p.allowed))
	for d := range p.allowed {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Evaluate decides a navigation to dest. The first matching rule wins:
//
//  1. a session that is still restoring gets Loading
//  2. an anonymous session is sent to login with dest preserved
//  3. a role outside the allow-list is sent to its own home
//  4. an inactive account gets the Deactivated notice
//  5. otherwise Allow
//
// Destinations missing from the policy are treated as allowing no role.
func (p *Policy) Evaluate(snap Snapshot, dest string) Decision {
	dest = normalise(dest)

	switch snap.State {
	case session.StateUnknown, session.StateRestoring:
		return Decision{Outcome: Loading}
	case session.StateAnonymous:
		return p.deny(dest, Decision{Outcome: RedirectLogin, Location: LoginLocation(dest)})
	}
	if snap.Identity == nil {
		return p.deny(dest, Decision{Outcome: RedirectLogin, Location: LoginLocation(dest)})
	}

	roles, ok := p.allowed[dest]
	if !ok || !snap.Identity.HasRole(roles...) {
		return p.deny(dest, Decision{Outcome: RedirectHome, Location: identity.Home(snap.Identity.Role)})
	}
	if !snap.Identity.IsActive {
		return p.deny(dest, Decision{Outcome: Deactivated})
	}
	return Decision{Outcome: Allow}
}

func (p *Policy) deny(dest string, d Decision) Decision {
	log.Debug().Str("destination", dest).Str("outcome", d.Outcome.String()).Str("location", d.Location).Msg("navigation denied")
	return d
}

// LoginLocation is the login URL that returns to dest after sign-in.
func LoginLocation(dest string) string {
	if dest == "" || dest == "/" {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(dest)
}

// SafeNext returns next if it is a local path, and fallback otherwise.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return fallback
	}
	return next
}

func normalise(dest string) string {
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		dest = dest[:i]
	}
	if len(dest) > 1 {
		dest = strings.TrimRight(dest, "/")
	}
	return dest
}
