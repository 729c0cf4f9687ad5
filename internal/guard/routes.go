package guard

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"jobboard-portal/internal/domain"
)

// Route binds a page path to its policy. Prefix routes also cover every
// path below them.
type Route struct {
	Path   string
	Prefix bool
	Policy Policy
}

// Routes is the page table of the portal.
type Routes struct {
	routes []Route
}

func NewRoutes(routes ...Route) *Routes {
	r := &Routes{routes: append([]Route(nil), routes...)}
	// Longest paths first so Match picks the most specific entry.
	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].Path) > len(r.routes[j].Path)
	})
	return r
}

// DefaultRoutes is the built-in job-board page table.
func DefaultRoutes() *Routes {
	return NewRoutes(
		Route{Path: "/login", Policy: PublicOnly()},
		Route{Path: "/register", Policy: PublicOnly()},
		Route{Path: "/forgot-password", Policy: PublicOnly()},
		Route{Path: "/reset-password", Prefix: true, Policy: PublicOnly()},
		Route{Path: "/candidat", Prefix: true, Policy: CandidateOnly()},
		Route{Path: "/recruteur", Prefix: true, Policy: Protected(
			WithName("recruiter"),
			WithUserTypes(domain.Recruteur),
			WithApproval(),
		)},
		Route{Path: "/prestataire", Prefix: true, Policy: ProviderOnly()},
		Route{Path: "/blog/editor", Prefix: true, Policy: Protected(
			WithName("blog-editor"),
			WithUserTypes(domain.Recruteur, domain.Prestataire),
			WithEmailVerification(),
		)},
		Route{Path: "/settings", Prefix: true, Policy: Authenticated()},
		Route{Path: "/profile", Prefix: true, Policy: Authenticated()},
	)
}

// Match returns the policy of the most specific route covering path.
func (r *Routes) Match(path string) (Route, bool) {
	path = normalize(path)
	for _, route := range r.routes {
		if route.Path == path {
			return route, true
		}
		if route.Prefix && strings.HasPrefix(path, strings.TrimRight(route.Path, "/")+"/") {
			return route, true
		}
	}
	return Route{}, false
}

// All returns the routes, most specific first.
func (r *Routes) All() []Route {
	return append([]Route(nil), r.routes...)
}

func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

type routeFile struct {
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Path                     string            `yaml:"path"`
	Prefix                   bool              `yaml:"prefix,omitempty"`
	Preset                   string            `yaml:"preset,omitempty"`
	Name                     string            `yaml:"name,omitempty"`
	RequireAuth              *bool             `yaml:"require_auth,omitempty"`
	AllowedUserTypes         []domain.UserType `yaml:"allowed_user_types,omitempty"`
	RequireApproval          bool              `yaml:"require_approval,omitempty"`
	RequireEmailVerification bool              `yaml:"require_email_verification,omitempty"`
	RedirectTarget           string            `yaml:"redirect_target,omitempty"`
	ReasonRedirects          bool              `yaml:"reason_redirects,omitempty"`
}

func (e routeEntry) route() (Route, error) {
	if !strings.HasPrefix(e.Path, "/") {
		return Route{}, fmt.Errorf("route path %q must start with /", e.Path)
	}

	p := Protected()
	if e.Preset != "" {
		preset, err := Preset(e.Preset)
		if err != nil {
			return Route{}, fmt.Errorf("route %s: %w", e.Path, err)
		}
		p = preset
	}
	if e.Name != "" {
		p.Name = e.Name
	}
	if e.RequireAuth != nil {
		p.RequireAuth = *e.RequireAuth
	}
	if len(e.AllowedUserTypes) > 0 {
		p.AllowedUserTypes = e.AllowedUserTypes
	}
	p.RequireApproval = p.RequireApproval || e.RequireApproval
	p.RequireEmailVerification = p.RequireEmailVerification || e.RequireEmailVerification
	p.ReasonRedirects = p.ReasonRedirects || e.ReasonRedirects
	if e.RedirectTarget != "" {
		p.RedirectTarget = e.RedirectTarget
	}
	return Route{Path: normalize(e.Path), Prefix: e.Prefix, Policy: p}, nil
}

// ParseRoutes reads a route table from YAML. Entries without require_auth
// are protected.
func ParseRoutes(data []byte) (*Routes, error) {
	var file routeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}

	routes := make([]Route, 0, len(file.Routes))
	seen := make(map[string]bool, len(file.Routes))
	for _, entry := range file.Routes {
		route, err := entry.route()
		if err != nil {
			return nil, err
		}
		if seen[route.Path] {
			return nil, fmt.Errorf("duplicate route %s", route.Path)
		}
		seen[route.Path] = true
		routes = append(routes, route)
	}
	return NewRoutes(routes...), nil
}

// LoadRoutes reads the route table at path.
func LoadRoutes(path string) (*Routes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	return ParseRoutes(data)
}

// MarshalYAML writes the table in the format ParseRoutes reads.
func (r *Routes) MarshalYAML() (interface{}, error) {
	file := routeFile{Routes: make([]routeEntry, 0, len(r.routes))}
	for _, route := range r.routes {
		requireAuth := route.Policy.RequireAuth
		file.Routes = append(file.Routes, routeEntry{
			Path:                     route.Path,
			Prefix:                   route.Prefix,
			Name:                     route.Policy.Name,
			RequireAuth:              &requireAuth,
			AllowedUserTypes:         route.Policy.AllowedUserTypes,
			RequireApproval:          route.Policy.RequireApproval,
			RequireEmailVerification: route.Policy.RequireEmailVerification,
			RedirectTarget:           route.Policy.RedirectTarget,
			ReasonRedirects:          route.Policy.ReasonRedirects,
		})
	}
	return file, nil
}
