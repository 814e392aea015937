// Package lookup holds the fixed classification tables consumed by the rule
// catalog and the scorer: customer tiers, technology priorities and the
// authorized OEM list.
package lookup

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Tier classifies a customer organization.
type Tier string

const (
	TierCritical Tier = "CRITICAL"
	TierHigh     Tier = "HIGH"
	TierStandard Tier = "STANDARD"
)

// Strategic reports whether customers of this tier get mandatory review.
func (t Tier) Strategic() bool {
	return t == TierCritical || t == TierHigh
}

// Priority classifies a technology vertical.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// File is the YAML shape of a lookup override file.
type File struct {
	Customers struct {
		Critical []string `yaml:"critical"`
		High     []string `yaml:"high"`
	} `yaml:"customers"`
	Technology struct {
		High   []string `yaml:"high"`
		Medium []string `yaml:"medium"`
	} `yaml:"technology"`
	AuthorizedOEMs []string `yaml:"authorized_oems"`
}

// Tables is an immutable, case-insensitive index over a File. Safe for
// concurrent use.
type Tables struct {
	customers map[string]Tier
	tech      map[string]Priority
	oems      map[string]bool
}

// DefaultFile returns the built-in tables.
func DefaultFile() File {
	var f File
	f.Customers.Critical = []string{
		"Space Force",
		"Air Force",
		"Department of Defense",
		"Defense Information Systems Agency",
	}
	f.Customers.High = []string{
		"Army",
		"Navy",
		"Department of Homeland Security",
		"Department of Veterans Affairs",
		"NASA",
	}
	f.Technology.High = []string{
		"Zero Trust",
		"Cybersecurity",
		"Cloud",
		"AI/ML",
	}
	f.Technology.Medium = []string{
		"Data Center",
		"Networking",
		"Collaboration",
		"Storage",
	}
	f.AuthorizedOEMs = []string{
		"Cisco",
		"Palo Alto Networks",
		"Dell",
		"HPE",
		"Microsoft",
	}
	return f
}

// Default returns Tables built from DefaultFile.
func Default() *Tables {
	return New(DefaultFile())
}

// New indexes f. When a name appears in both the critical and high customer
// lists, critical wins; likewise high wins over medium for technology.
func New(f File) *Tables {
	t := &Tables{
		customers: make(map[string]Tier),
		tech:      make(map[string]Priority),
		oems:      make(map[string]bool),
	}
	for _, c := range f.Customers.High {
		t.customers[Fold(c)] = TierHigh
	}
	for _, c := range f.Customers.Critical {
		t.customers[Fold(c)] = TierCritical
	}
	for _, v := range f.Technology.Medium {
		t.tech[Fold(v)] = PriorityMedium
	}
	for _, v := range f.Technology.High {
		t.tech[Fold(v)] = PriorityHigh
	}
	for _, o := range f.AuthorizedOEMs {
		t.oems[Fold(o)] = true
	}
	return t
}

// LoadFile reads a YAML override. Sections left empty in the file keep the
// built-in defaults.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "lookup: read %s", path)
	}

	var wrapper struct {
		Lookup File `yaml:"lookup"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "lookup: parse")
	}

	f := DefaultFile()
	in := wrapper.Lookup
	if len(in.Customers.Critical) > 0 || len(in.Customers.High) > 0 {
		f.Customers = in.Customers
	}
	if len(in.Technology.High) > 0 || len(in.Technology.Medium) > 0 {
		f.Technology = in.Technology
	}
	if len(in.AuthorizedOEMs) > 0 {
		f.AuthorizedOEMs = in.AuthorizedOEMs
	}
	return New(f), nil
}

// CustomerTier returns the tier for a customer name; unknown or empty names
// are standard.
func (t *Tables) CustomerTier(customer string) Tier {
	if tier, ok := t.customers[Fold(customer)]; ok {
		return tier
	}
	return TierStandard
}

// TechPriority returns the priority of a technology vertical.
func (t *Tables) TechPriority(vertical string) Priority {
	if p, ok := t.tech[Fold(vertical)]; ok {
		return p
	}
	return PriorityLow
}

// AuthorizedOEM reports whether the vendor is on the authorized list.
func (t *Tables) AuthorizedOEM(oem string) bool {
	return t.oems[Fold(oem)]
}

// Fold returns the case-folded, whitespace-collapsed form of s used as a
// lookup and grouping key.
func Fold(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}
