package router

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlRoute is one route descriptor as operators author it.
type yamlRoute struct {
	Pattern          string `yaml:"pattern"`
	Method           string `yaml:"method"`
	UpstreamService  string `yaml:"upstream_service"`
	StripPrefixCount int    `yaml:"strip_prefix_count"`
	Priority         int    `yaml:"priority"`
}

// yamlRoutesDocument is the on-disk shape of the route table plus the
// static service-discovery seed list.
type yamlRoutesDocument struct {
	Routes    []yamlRoute         `yaml:"routes"`
	Instances map[string][]string `yaml:"instances"`
}

// LoadRoutesFile reads the operator-maintained route table and
// service-instance seed list from a YAML file, the same format family the
// Policy Manager's rule file uses.
func LoadRoutesFile(path string) ([]RouteEntry, map[string][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("router: read %s: %w", path, err)
	}

	var doc yamlRoutesDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("router: parse %s: %w", path, err)
	}

	entries := make([]RouteEntry, 0, len(doc.Routes))
	for _, r := range doc.Routes {
		if r.UpstreamService == "" {
			return nil, nil, fmt.Errorf("router: route %q has no upstream_service", r.Pattern)
		}
		entries = append(entries, RouteEntry{
			Pattern:          r.Pattern,
			Method:           r.Method,
			UpstreamService:  r.UpstreamService,
			StripPrefixCount: r.StripPrefixCount,
			Priority:         r.Priority,
		})
	}
	return entries, doc.Instances, nil
}
