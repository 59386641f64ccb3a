// Package policy holds the per owner-kind credential requirements.
package policy

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"credlife/internal/credential/models"
	dErrors "credlife/pkg/domain-errors"
)

const (
	defaultMaxSizeBytes = 10 * 1024 * 1024
	day                 = 24 * time.Hour
)

var defaultFormats = []string{"image/jpeg", "image/jpg", "image/png", "application/pdf"}

// Rule constrains one credential kind for one owner kind.
type Rule struct {
	Kind           models.Kind `yaml:"kind"`
	Required       bool        `yaml:"required"`
	MaxSizeBytes   int64       `yaml:"max_size_bytes"`
	AllowedFormats []string    `yaml:"allowed_formats"`
	ValidityDays   int         `yaml:"validity_days"`
}

// Validity returns how long an approval stays valid, or zero when the kind
// does not expire on its own.
func (r Rule) Validity() time.Duration {
	if r.ValidityDays <= 0 {
		return 0
	}
	return time.Duration(r.ValidityDays) * day
}

// CheckFile verifies a file reference against the rule's size and format limits.
func (r Rule) CheckFile(file models.FileRef) error {
	if file.SizeBytes <= 0 {
		return dErrors.New(dErrors.CodePolicyViolation, "file size must be positive")
	}
	if r.MaxSizeBytes > 0 && file.SizeBytes > r.MaxSizeBytes {
		return dErrors.New(dErrors.CodePolicyViolation,
			fmt.Sprintf("file exceeds %d bytes allowed for %s", r.MaxSizeBytes, r.Kind))
	}
	if len(r.AllowedFormats) > 0 && !slices.Contains(r.AllowedFormats, strings.ToLower(file.MimeType)) {
		return dErrors.New(dErrors.CodePolicyViolation,
			fmt.Sprintf("format %q not accepted for %s", file.MimeType, r.Kind))
	}
	return nil
}

// OwnerPolicy lists the rules for a single owner kind in declaration order.
type OwnerPolicy struct {
	OwnerKind models.OwnerKind `yaml:"owner_kind"`
	Rules     []Rule           `yaml:"rules"`
}

// RequiredKinds returns the mandatory kinds in declaration order.
func (p OwnerPolicy) RequiredKinds() []models.Kind {
	var kinds []models.Kind
	for _, r := range p.Rules {
		if r.Required {
			kinds = append(kinds, r.Kind)
		}
	}
	return kinds
}

// Rule returns the rule for a kind.
func (p OwnerPolicy) Rule(kind models.Kind) (Rule, bool) {
	for _, r := range p.Rules {
		if r.Kind == kind {
			return r, true
		}
	}
	return Rule{}, false
}

// Set is the complete read-only requirement configuration keyed by owner kind.
type Set struct {
	owners map[models.OwnerKind]OwnerPolicy
}

// NewSet builds a Set, rejecting unknown or duplicate entries.
func NewSet(policies ...OwnerPolicy) (*Set, error) {
	s := &Set{owners: make(map[models.OwnerKind]OwnerPolicy, len(policies))}
	for _, p := range policies {
		if !p.OwnerKind.IsValid() {
			return nil, fmt.Errorf("unknown owner kind %q", p.OwnerKind)
		}
		seen := map[models.Kind]bool{}
		for i, r := range p.Rules {
			if !r.Kind.IsValid() {
				return nil, fmt.Errorf("owner kind %s: unknown credential kind %q", p.OwnerKind, r.Kind)
			}
			if seen[r.Kind] {
				return nil, fmt.Errorf("owner kind %s: duplicate rule for %s", p.OwnerKind, r.Kind)
			}
			seen[r.Kind] = true
			if r.MaxSizeBytes == 0 {
				p.Rules[i].MaxSizeBytes = defaultMaxSizeBytes
			}
			if len(r.AllowedFormats) == 0 {
				p.Rules[i].AllowedFormats = slices.Clone(defaultFormats)
			}
		}
		s.owners[p.OwnerKind] = p
	}
	return s, nil
}

// For returns the policy of an owner kind. Unknown owner kinds have no requirements.
func (s *Set) For(ownerKind models.OwnerKind) OwnerPolicy {
	if p, ok := s.owners[ownerKind]; ok {
		return p
	}
	return OwnerPolicy{OwnerKind: ownerKind}
}

// Lookup resolves the rule for (ownerKind, kind). Kinds an owner kind does not
// know about are a policy violation.
func (s *Set) Lookup(ownerKind models.OwnerKind, kind models.Kind) (Rule, error) {
	if !ownerKind.IsValid() {
		return Rule{}, dErrors.New(dErrors.CodePolicyViolation, fmt.Sprintf("unknown owner kind %q", ownerKind))
	}
	rule, ok := s.For(ownerKind).Rule(kind)
	if !ok {
		return Rule{}, dErrors.New(dErrors.CodePolicyViolation,
			fmt.Sprintf("credential kind %q is not recognised for %s", kind, ownerKind))
	}
	return rule, nil
}

type fileFormat struct {
	Owners []OwnerPolicy `yaml:"owners"`
}

// Load reads a YAML policy file. Owner kinds absent from the file keep their defaults.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML policy bytes over the defaults.
func Parse(raw []byte) (*Set, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode policy file: %w", err)
	}
	merged := map[models.OwnerKind]OwnerPolicy{}
	for _, p := range defaultPolicies() {
		merged[p.OwnerKind] = p
	}
	for _, p := range doc.Owners {
		merged[p.OwnerKind] = p
	}
	policies := make([]OwnerPolicy, 0, len(merged))
	for _, kind := range models.OwnerKinds {
		if p, ok := merged[kind]; ok {
			policies = append(policies, p)
			delete(merged, kind)
		}
	}
	for _, p := range merged {
		policies = append(policies, p)
	}
	return NewSet(policies...)
}

// Defaults returns the marketplace's built-in requirements.
func Defaults() *Set {
	s, err := NewSet(defaultPolicies()...)
	if err != nil {
		panic(err)
	}
	return s
}

func defaultPolicies() []OwnerPolicy {
	return []OwnerPolicy{
		{
			OwnerKind: models.OwnerDeliverer,
			Rules: []Rule{
				{Kind: models.KindIdentityDocument, Required: true},
				{Kind: models.KindDrivingLicense, Required: true},
				{Kind: models.KindVehicleRegistration, Required: true},
				{Kind: models.KindInsuranceCertificate, Required: true, ValidityDays: 365},
			},
		},
		{
			OwnerKind: models.OwnerProvider,
			Rules: []Rule{
				{Kind: models.KindIdentityDocument, Required: true},
				{Kind: models.KindCertificationExam, Required: true, ValidityDays: 730},
				{Kind: models.KindInsuranceCertificate, Required: true, ValidityDays: 365},
				{Kind: models.KindProofOfAddress, Required: true, ValidityDays: 180},
			},
		},
		{
			OwnerKind: models.OwnerMerchant,
			Rules: []Rule{
				{Kind: models.KindIdentityDocument, Required: true},
				{Kind: models.KindBusinessRegistration, Required: true, ValidityDays: 365},
				{Kind: models.KindProofOfAddress, Required: true, ValidityDays: 180},
				{Kind: models.KindCommercialContract, ValidityDays: 365},
			},
		},
	}
}
