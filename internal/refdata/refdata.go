// Package refdata holds the read-only reference data consulted on every
// authorization: the card/merchant blacklist and the merchant-category
// policy.
//
// Reference data is maintained by an external feed and reloaded periodically.
// Readers always see a complete, immutable Snapshot via an atomic pointer
// swap — a reload can never expose a torn update to in-flight decisions.
package refdata

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// blacklistFile is the YAML shape of the blacklist feed.
type blacklistFile struct {
	CardPrefixes []string `yaml:"card_prefixes"`
	MerchantIDs  []string `yaml:"merchant_ids"`
}

// policyFile is the YAML shape of the merchant policy feed.
type policyFile struct {
	BlockedCategories []string `yaml:"blocked_categories"`
	BlockedKeywords   []string `yaml:"blocked_keywords"`
}

// Snapshot is one immutable generation of reference data. All lookups are
// lock-free and safe for unbounded concurrent use.
type Snapshot struct {
	cardPrefixes []string
	merchantIDs  map[string]struct{}
	categories   map[string]struct{}
	keywords     []string // lowercased
	loadedAt     time.Time
}

// Load parses the blacklist and policy YAML files into a Snapshot.
func Load(blacklistPath, policyPath string) (*Snapshot, error) {
	var bl blacklistFile
	if err := readYAML(blacklistPath, &bl); err != nil {
		return nil, fmt.Errorf("refdata: blacklist: %w", err)
	}
	var pol policyFile
	if err := readYAML(policyPath, &pol); err != nil {
		return nil, fmt.Errorf("refdata: policy: %w", err)
	}
	return build(bl, pol), nil
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func build(bl blacklistFile, pol policyFile) *Snapshot {
	s := &Snapshot{
		merchantIDs: make(map[string]struct{}, len(bl.MerchantIDs)),
		categories:  make(map[string]struct{}, len(pol.BlockedCategories)),
		loadedAt:    time.Now(),
	}
	for _, p := range bl.CardPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			s.cardPrefixes = append(s.cardPrefixes, p)
		}
	}
	for _, id := range bl.MerchantIDs {
		if id = strings.TrimSpace(id); id != "" {
			s.merchantIDs[id] = struct{}{}
		}
	}
	for _, c := range pol.BlockedCategories {
		if c = strings.TrimSpace(c); c != "" {
			s.categories[c] = struct{}{}
		}
	}
	for _, kw := range pol.BlockedKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			s.keywords = append(s.keywords, kw)
		}
	}
	return s
}

// NewSnapshot builds a Snapshot directly from slices. Used by tests and by
// deployments that inject reference data instead of reading files.
func NewSnapshot(cardPrefixes, merchantIDs, blockedCategories, blockedKeywords []string) *Snapshot {
	return build(
		blacklistFile{CardPrefixes: cardPrefixes, MerchantIDs: merchantIDs},
		policyFile{BlockedCategories: blockedCategories, BlockedKeywords: blockedKeywords},
	)
}

// LoadedAt reports when this generation was built. Health checks use it to
// flag stale reference data.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// CardBlacklisted reports whether the card number matches a blacklist prefix.
func (s *Snapshot) CardBlacklisted(cardNumber string) bool {
	for _, p := range s.cardPrefixes {
		if strings.HasPrefix(cardNumber, p) {
			return true
		}
	}
	return false
}

// MerchantBlacklisted reports whether the merchant ID is blacklisted.
func (s *Snapshot) MerchantBlacklisted(merchantID string) bool {
	_, ok := s.merchantIDs[merchantID]
	return ok
}

// CategoryBlocked reports whether the merchant category code is disallowed.
func (s *Snapshot) CategoryBlocked(categoryCode string) bool {
	_, ok := s.categories[categoryCode]
	return ok
}

// KeywordMatch returns the first disallowed keyword contained in the
// merchant name (case-insensitive), or "" when none match.
func (s *Snapshot) KeywordMatch(merchantName string) string {
	name := strings.ToLower(merchantName)
	for _, kw := range s.keywords {
		if strings.Contains(name, kw) {
			return kw
		}
	}
	return ""
}
