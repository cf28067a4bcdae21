package providers

import (
	"sort"
	"strings"

	"github.com/bryanwahyu/footprint/internal/domain/scans"
)

// Tier of a workspace plan. Higher tiers include everything below them.
type Tier string

const (
	TierFree     Tier = "free"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

func (t Tier) rank() int {
	switch t {
	case TierPro:
		return 1
	case TierBusiness:
		return 2
	default:
		return 0
	}
}

// Allows reports whether a workspace on tier t may use something gated at min.
func (t Tier) Allows(min Tier) bool { return t.rank() >= min.rank() }

func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPro:
		return TierPro
	case TierBusiness:
		return TierBusiness
	default:
		return TierFree
	}
}

type Category string

const (
	CategoryUsername   Category = "username"
	CategoryEmail      Category = "email"
	CategoryBreach     Category = "breach"
	CategoryPhone      Category = "phone"
	CategoryDomain     Category = "domain"
	CategoryReputation Category = "reputation"
	CategoryRecon      Category = "recon"
)

// Provider describes one OSINT tool the worker can run.
type Provider struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	ScanTypes   []scans.TargetType `json:"scan_types"`
	CreditCost  int                `json:"credit_cost"`
	MinTier     Tier               `json:"min_tier"`
	Category    Category           `json:"category"`
	RequiresKey bool               `json:"requires_key"`
	Enabled     bool               `json:"enabled"`
}

func (p Provider) Supports(t scans.TargetType) bool {
	for _, st := range p.ScanTypes {
		if st == t {
			return true
		}
	}
	return false
}

// Override adjusts a built-in provider from config.
type Override struct {
	Enabled    *bool
	CreditCost *int
	MinTier    string
}

// Registry is the allow-list of providers plus per-type defaults.
type Registry struct {
	byID     map[string]Provider
	order    []string
	defaults map[scans.TargetType][]string
}

func NewRegistry(list []Provider, defaults map[scans.TargetType][]string) *Registry {
	r := &Registry{byID: make(map[string]Provider, len(list)), defaults: defaults}
	for _, p := range list {
		id := strings.ToLower(p.ID)
		p.ID = id
		if _, dup := r.byID[id]; !dup {
			r.order = append(r.order, id)
		}
		r.byID[id] = p
	}
	return r
}

// DefaultRegistry returns the providers the worker ships with.
func DefaultRegistry() *Registry {
	u, e, ph, d := scans.TargetUsername, scans.TargetEmail, scans.TargetPhone, scans.TargetDomain
	list := []Provider{
		{ID: "sherlock", Name: "Sherlock", Description: "Username search across social networks",
			ScanTypes: []scans.TargetType{u}, CreditCost: 1, MinTier: TierFree, Category: CategoryUsername, Enabled: true},
		{ID: "maigret", Name: "Maigret", Description: "Username enumeration across 3000+ sites",
			ScanTypes: []scans.TargetType{u}, CreditCost: 5, MinTier: TierFree, Category: CategoryUsername, Enabled: true},
		{ID: "whatsmyname", Name: "WhatsMyName", Description: "Community maintained username checks",
			ScanTypes: []scans.TargetType{u}, CreditCost: 1, MinTier: TierFree, Category: CategoryUsername, Enabled: true},
		{ID: "gosearch", Name: "GoSearch", Description: "Fast username discovery",
			ScanTypes: []scans.TargetType{u}, CreditCost: 2, MinTier: TierPro, Category: CategoryUsername, Enabled: true},
		{ID: "holehe", Name: "Holehe", Description: "Email registration checks",
			ScanTypes: []scans.TargetType{e}, CreditCost: 1, MinTier: TierFree, Category: CategoryEmail, Enabled: true},
		{ID: "hibp", Name: "Have I Been Pwned", Description: "Breach exposure lookup",
			ScanTypes: []scans.TargetType{e}, CreditCost: 1, MinTier: TierFree, Category: CategoryBreach, RequiresKey: true, Enabled: true},
		{ID: "dehashed", Name: "DeHashed", Description: "Leaked credential search",
			ScanTypes: []scans.TargetType{e, u}, CreditCost: 3, MinTier: TierPro, Category: CategoryBreach, RequiresKey: true, Enabled: true},
		{ID: "spamhaus", Name: "Spamhaus", Description: "Domain and email reputation",
			ScanTypes: []scans.TargetType{e, d}, CreditCost: 1, MinTier: TierFree, Category: CategoryReputation, Enabled: true},
		{ID: "urlscan", Name: "urlscan.io", Description: "Domain scan history",
			ScanTypes: []scans.TargetType{d}, CreditCost: 1, MinTier: TierFree, Category: CategoryDomain, RequiresKey: true, Enabled: true},
		{ID: "phone-intel", Name: "Phone Intelligence", Description: "Carrier and line type lookup",
			ScanTypes: []scans.TargetType{ph}, CreditCost: 2, MinTier: TierPro, Category: CategoryPhone, RequiresKey: true, Enabled: true},
		{ID: "spiderfoot", Name: "SpiderFoot", Description: "Automated OSINT reconnaissance",
			ScanTypes: []scans.TargetType{e, u, d}, CreditCost: 10, MinTier: TierBusiness, Category: CategoryRecon, Enabled: true},
		{ID: "reconng", Name: "Recon-ng", Description: "Modular reconnaissance framework",
			ScanTypes: []scans.TargetType{e, d}, CreditCost: 10, MinTier: TierBusiness, Category: CategoryRecon, Enabled: true},
	}
	defaults := map[scans.TargetType][]string{
		u:  {"maigret", "whatsmyname", "gosearch"},
		e:  {"hibp", "holehe", "dehashed"},
		ph: {"phone-intel"},
		d:  {"urlscan", "spamhaus"},
	}
	return NewRegistry(list, defaults)
}

// Apply merges config overrides into the registry. Unknown ids are returned.
func (r *Registry) Apply(overrides map[string]Override) []string {
	var unknown []string
	for id, o := range overrides {
		id = strings.ToLower(id)
		p, ok := r.byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		if o.Enabled != nil {
			p.Enabled = *o.Enabled
		}
		if o.CreditCost != nil && *o.CreditCost >= 0 {
			p.CreditCost = *o.CreditCost
		}
		if o.MinTier != "" {
			p.MinTier = ParseTier(o.MinTier)
		}
		r.byID[id] = p
	}
	sort.Strings(unknown)
	return unknown
}

func (r *Registry) Lookup(id string) (Provider, bool) {
	p, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// All returns providers in registration order.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Available lists enabled providers a tier may use.
func (r *Registry) Available(tier Tier) []Provider {
	var out []Provider
	for _, p := range r.All() {
		if p.Enabled && tier.Allows(p.MinTier) {
			out = append(out, p)
		}
	}
	return out
}

// Defaults returns the default provider ids for a target type, limited to the tier.
func (r *Registry) Defaults(t scans.TargetType, tier Tier) []string {
	var out []string
	for _, id := range r.defaults[t] {
		p, ok := r.byID[id]
		if !ok || !p.Enabled || !tier.Allows(p.MinTier) || !p.Supports(t) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// TotalCredits sums the credit cost of known providers.
func (r *Registry) TotalCredits(ids []string) int {
	total := 0
	for _, id := range ids {
		if p, ok := r.Lookup(id); ok {
			total += p.CreditCost
		}
	}
	return total
}

// Resolution is the provider list a scan will actually dispatch.
type Resolution struct {
	Providers []string `json:"providers"`
	Dropped   []string `json:"dropped,omitempty"`
	Defaulted bool     `json:"defaulted"`
}

// Resolve filters the requested providers down to known, enabled, compatible ones.
// Providers above the workspace tier are an error, not silently dropped.
// When nothing usable remains the type defaults are used.
func (r *Registry) Resolve(t scans.TargetType, requested []string, tier Tier) (Resolution, error) {
	var res Resolution
	seen := make(map[string]bool, len(requested))
	for _, raw := range requested {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		p, ok := r.byID[id]
		if !ok || !p.Enabled || !p.Supports(t) {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		if !tier.Allows(p.MinTier) {
			return Resolution{}, scans.Invalid(scans.CodeTierRestricted,
				"provider %s requires the %s plan", id, p.MinTier)
		}
		res.Providers = append(res.Providers, id)
	}
	if len(res.Providers) == 0 {
		res.Providers = r.Defaults(t, tier)
		res.Defaulted = true
	}
	if len(res.Providers) == 0 {
		return Resolution{}, scans.Invalid(scans.CodeInvalidProvider,
			"no providers available for %s scans", t)
	}
	return res, nil
}
