package router

import (
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// RouteEntry binds a path pattern to the upstream service it proxies to.
type RouteEntry struct {
	Pattern          string
	Method           string // "" matches any method
	UpstreamService  string
	StripPrefixCount int
	Priority         int
}

type compiledRoute struct {
	RouteEntry
	g             glob.Glob
	literalPrefix int
}

// StaticRouteTable is a RouteTable backed by an in-memory, glob-matched
// list of RouteEntry values, mirroring the Policy Manager's matching rules
// so the two stay consistent for operators authoring both tables.
type StaticRouteTable struct {
	routes []compiledRoute
}

// NewStaticRouteTable compiles entries once at construction time.
func NewStaticRouteTable(entries []RouteEntry) (*StaticRouteTable, error) {
	compiled := make([]compiledRoute, 0, len(entries))
	for _, e := range entries {
		g, err := glob.Compile(e.Pattern, '/')
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRoute{
			RouteEntry:    e,
			g:             g,
			literalPrefix: literalPrefixLen(e.Pattern),
		})
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority > compiled[j].Priority
		}
		return compiled[i].literalPrefix > compiled[j].literalPrefix
	})
	return &StaticRouteTable{routes: compiled}, nil
}

func (t *StaticRouteTable) Resolve(method, path string) (string, int, bool) {
	for _, r := range t.routes {
		if r.Method != "" && r.Method != "*" && !strings.EqualFold(r.Method, method) {
			continue
		}
		if r.g.Match(path) {
			return r.UpstreamService, r.StripPrefixCount, true
		}
	}
	return "", 0, false
}

func literalPrefixLen(pattern string) int {
	for i, c := range pattern {
		if c == '*' {
			return i
		}
	}
	return len(pattern)
}
