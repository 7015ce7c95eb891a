// Package patterns holds the detection data the patch passes match
// against: ad network domains, smali class path prefixes, resource name
// globs, manifest permission names, and manifest component keywords.
//
// Each list ships with built-in defaults and can be replaced from a plain
// text file, one entry per line, with # starting a comment.
package patterns

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/purify/pkg/purify/logging"
)

// Set holds the full pattern inventory for one run. Construct with
// Default() and override individual lists from files as configured.
type Set struct {
	// Domains are ad network hostnames replaced in smali string literals.
	Domains []string

	// Classes are slash-separated class path prefixes whose smali files
	// and directories are removed.
	Classes []string

	// Resources are glob patterns matched against resource file stems.
	Resources []string

	// Permissions are substrings of uses-permission names that mark a
	// permission for removal. Deliberately narrow: network and billing
	// permissions are shared with legitimate app code.
	Permissions []string

	// Components are lowercase keywords matched against manifest
	// component names (activity, service, receiver).
	Components []string

	compiled []glob.Glob
}

// Default returns the built-in pattern set.
func Default() *Set {
	return &Set{
		Domains: []string{
			"googleads.g.doubleclick.net",
			"googlesyndication.com",
			"googleadservices.com",
			"facebook.com/tr",
			"amazon-adsystem.com",
			"unity3d.com/ads",
			"chartboost.com",
			"applovin.com",
			"ironsrc.com",
			"vungle.com",
			"tapjoy.com",
			"inmobi.com",
			"mopub.com",
			"admob.com",
			"adsystem.com",
			"advertising.com",
		},
		Classes: []string{
			"com/google/ads",
			"com/google/android/gms/ads",
			"com/facebook/ads",
			"com/amazon/device/ads",
			"com/unity3d/ads",
			"com/chartboost",
			"com/applovin",
			"com/ironsource",
			"com/vungle",
			"com/tapjoy",
			"com/inmobi",
			"com/mopub",
			"com/admob",
			"com/adsystem",
			"com/advertising",
		},
		Resources: []string{
			"*native_ad*",
			"*banner_ad*",
			"*interstitial_ad*",
			"*admob*",
			"*doubleclick*",
			"*google_ads*",
			"*unity_ads*",
			"*facebook_ads*",
			"*ad_unit*",
		},
		Permissions: []string{
			"AD_ID",
		},
		Components: []string{
			"ads",
			"admob",
			"doubleclick",
		},
	}
}

// LoadFile reads one pattern list from a text file. Blank lines and lines
// starting with # are skipped.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pattern file: %w", err)
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading pattern file: %w", err)
	}
	return entries, nil
}

// Overrides points at optional replacement files per list. Empty fields
// keep the defaults.
type Overrides struct {
	Domains    string
	Classes    string
	Resources  string
	Components string
}

// Load builds a pattern set from the defaults and any override files.
func Load(ov Overrides) (*Set, error) {
	logger := logging.Get("patterns")
	set := Default()

	apply := func(path, name string, dst *[]string) error {
		if path == "" {
			return nil
		}
		entries, err := LoadFile(path)
		if err != nil {
			return fmt.Errorf("loading %s patterns: %w", name, err)
		}
		*dst = entries
		logger.Info("loaded pattern overrides", "list", name, "count", len(entries), "path", path)
		return nil
	}

	if err := apply(ov.Domains, "domain", &set.Domains); err != nil {
		return nil, err
	}
	if err := apply(ov.Classes, "class", &set.Classes); err != nil {
		return nil, err
	}
	if err := apply(ov.Resources, "resource", &set.Resources); err != nil {
		return nil, err
	}
	if err := apply(ov.Components, "component", &set.Components); err != nil {
		return nil, err
	}

	if err := set.Compile(); err != nil {
		return nil, err
	}
	return set, nil
}

// Compile validates and compiles the resource globs. Must be called after
// mutating Resources.
func (s *Set) Compile() error {
	compiled := make([]glob.Glob, 0, len(s.Resources))
	for _, pattern := range s.Resources {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("compiling resource pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}
	s.compiled = compiled
	return nil
}

// MatchResource reports whether a resource file stem matches any resource
// pattern. Compile must have been called first; an uncompiled set matches
// nothing.
func (s *Set) MatchResource(stem string) bool {
	for _, g := range s.compiled {
		if g.Match(stem) {
			return true
		}
	}
	return false
}

// MatchComponent reports whether a manifest component name contains any
// component keyword. Matching is case-insensitive.
func (s *Set) MatchComponent(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range s.Components {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// MatchPermission reports whether a permission name contains any entry
// from the permission list.
func (s *Set) MatchPermission(name string) bool {
	for _, p := range s.Permissions {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// AddDomain adds a domain to the set at runtime.
func (s *Set) AddDomain(domain string) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return
	}
	for _, d := range s.Domains {
		if d == domain {
			return
		}
	}
	s.Domains = append(s.Domains, domain)
}

// AddClass adds a class path prefix to the set at runtime.
func (s *Set) AddClass(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	for _, c := range s.Classes {
		if c == pattern {
			return
		}
	}
	s.Classes = append(s.Classes, pattern)
}

// SortedDomains returns the domains in deterministic order. Replacement
// order matters when one domain is a substring of another; longer first
// keeps the longer match intact.
func (s *Set) SortedDomains() []string {
	out := make([]string, len(s.Domains))
	copy(out, s.Domains)
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
