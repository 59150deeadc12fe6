package rules

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Version tags reported alongside loaded profiles
const (
	VersionFile    = "rules.yaml"
	VersionBuiltin = "builtin-default"
)

// Thresholds is the numeric threshold set of a policy profile
type Thresholds map[string]float64

// Value returns the threshold for key, or def when the profile does not
// configure it.
func (t Thresholds) Value(key string, def float64) float64 {
	if v, ok := t[key]; ok {
		return v
	}
	return def
}

// Profile bundles the thresholds and blocklist of one policy profile
type Profile struct {
	Name       string
	Thresholds Thresholds
	Blocklist  []string
}

// builtinProfiles supply defaults when no rules file is configured and for
// unknown profile names.
var builtinProfiles = map[string]Profile{
	"default": {
		Name: "default",
		Thresholds: Thresholds{
			"max_single_weight":        0.4,
			"max_hhi":                  0.3,
			"max_portfolio_volatility": 0.24,
			"max_weighted_spread_bps":  50,
			"min_weighted_adv":         3000000,
		},
		Blocklist: []string{"CCC"},
	},
	"conservative": {
		Name: "conservative",
		Thresholds: Thresholds{
			"max_single_weight":        0.3,
			"max_hhi":                  0.25,
			"max_portfolio_volatility": 0.2,
			"max_weighted_spread_bps":  40,
			"min_weighted_adv":         5000000,
		},
		Blocklist: []string{"CCC"},
	},
}

type cachedProfile struct {
	profile Profile
	version string
}

// Store loads policy-profile thresholds from an optional rules.yaml file,
// falling back to built-in defaults. Profiles are cached per (profile, path)
// and never invalidated mid-run; construct a new Store to pick up file edits.
type Store struct {
	path string
	log  zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedProfile
}

// NewStore creates a threshold store backed by the rules file at path.
// An empty path serves built-in defaults only.
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		path:  path,
		log:   log.With().Str("component", "rules").Logger(),
		cache: make(map[string]cachedProfile),
	}
}

// Load returns the profile's thresholds and the version tag of their source.
// Unknown profiles fall back to the file's default section, then to the
// built-in default profile.
func (s *Store) Load(profile string) (Profile, string) {
	if profile == "" {
		profile = "default"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if hit, ok := s.cache[profile]; ok {
		return hit.profile, hit.version
	}

	loaded, version := s.loadUncached(profile)
	s.cache[profile] = cachedProfile{profile: loaded, version: version}
	return loaded, version
}

// Blocklist returns the profile's blocked symbols and the ruleset version tag
func (s *Store) Blocklist(profile string) ([]string, string) {
	p, version := s.Load(profile)
	out := make([]string, len(p.Blocklist))
	copy(out, p.Blocklist)
	return out, version
}

func (s *Store) loadUncached(profile string) (Profile, string) {
	if s.path != "" {
		fromFile, err := s.readFile()
		if err != nil {
			s.log.Warn().Err(err).Str("path", s.path).Msg("Failed to read rules file, using builtin defaults")
		} else if fromFile != nil {
			if p, ok := fromFile[profile]; ok {
				p.Name = profile
				return p, VersionFile
			}
			if p, ok := fromFile["default"]; ok {
				p.Name = profile
				return p, VersionFile
			}
		}
	}

	if p, ok := builtinProfiles[profile]; ok {
		return p, VersionBuiltin
	}
	return builtinProfiles["default"], VersionBuiltin
}

func (s *Store) readFile() (map[string]Profile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var doc map[string]map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	profiles := make(map[string]Profile, len(doc))
	for name, section := range doc {
		p := Profile{Name: name, Thresholds: Thresholds{}}
		keys := make([]string, 0, len(section))
		for key := range section {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			node := section[key]
			if key == "blocklist" {
				var symbols []string
				if err := node.Decode(&symbols); err != nil {
					return nil, fmt.Errorf("profile %s: invalid blocklist: %w", name, err)
				}
				p.Blocklist = symbols
				continue
			}
			var value float64
			if err := node.Decode(&value); err != nil {
				// Non-numeric, non-blocklist entries are skipped; the
				// threshold engine only consumes numbers.
				continue
			}
			p.Thresholds[key] = value
		}
		profiles[name] = p
	}
	return profiles, nil
}
