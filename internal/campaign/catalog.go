// Package campaign runs the cage and attachment retarget pass over every
// entry of a catalog.
package campaign

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/cagekit/pkg/retarget"
)

// Catalog errors.
var (
	ErrDuplicateEntry = errors.New("duplicate catalog entry")
	ErrEmptyEntryName = errors.New("catalog entry without name")
)

// Category tells cages and attachment markers apart.
type Category int

// Entry categories.
const (
	CategoryCage Category = iota
	CategoryAttachment
)

// String returns the lower-case category name.
func (c Category) String() string {
	switch c {
	case CategoryCage:
		return "cage"
	case CategoryAttachment:
		return "attachment"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Mode returns the deformation mode used for the category.
func (c Category) Mode() retarget.Mode {
	if c == CategoryAttachment {
		return retarget.RigidTransform
	}
	return retarget.PerVertexElastic
}

// ParseCategory parses "cage" or "attachment".
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cage":
		return CategoryCage, nil
	case "attachment", "att":
		return CategoryAttachment, nil
	}
	return 0, fmt.Errorf("unknown catalog category %q", s)
}

// MarshalYAML writes the category name.
func (c Category) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalYAML reads a category name.
func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseCategory(value.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Entry names one sub-mesh a template may contain.
type Entry struct {
	Name     string   `yaml:"name"`
	Category Category `yaml:"category"`
	Bone     string   `yaml:"bone,omitempty"` // body part the marker belongs to
}

// Catalog is the set of regions and markers a template may contain. It is
// a superset: entries absent from a scene are skipped.
type Catalog struct {
	Entries []Entry `yaml:"entries"`
}

// r15Parts are the body parts of an R15 avatar.
var r15Parts = []string{
	"Head",
	"UpperTorso", "LowerTorso",
	"LeftUpperArm", "LeftLowerArm", "LeftHand",
	"RightUpperArm", "RightLowerArm", "RightHand",
	"LeftUpperLeg", "LeftLowerLeg", "LeftFoot",
	"RightUpperLeg", "RightLowerLeg", "RightFoot",
}

// attachmentBones maps each attachment marker to the body part it follows.
var attachmentBones = []struct{ name, bone string }{
	// Head
	{"FaceCenter_Att", "Head"},
	{"FaceFront_Att", "Head"},
	{"Hat_Att", "Head"},
	{"Hair_Att", "Head"},
	// UpperTorso
	{"Neck_Att", "UpperTorso"},
	{"LeftCollar_Att", "UpperTorso"},
	{"RightCollar_Att", "UpperTorso"},
	{"BodyBack_Att", "UpperTorso"},
	{"BodyFront_Att", "UpperTorso"},
	// LowerTorso
	{"Root_Att", "LowerTorso"},
	{"WaistFront_Att", "LowerTorso"},
	{"WaistBack_Att", "LowerTorso"},
	{"WaistCenter_Att", "LowerTorso"},
	// Limbs
	{"LeftShoulder_Att", "LeftUpperArm"},
	{"RightShoulder_Att", "RightUpperArm"},
	{"LeftGrip_Att", "LeftHand"},
	{"RightGrip_Att", "RightHand"},
	{"LeftFoot_Att", "LeftFoot"},
	{"RightFoot_Att", "RightFoot"},
}

// DefaultCatalog returns the full-body cage, one outer cage per R15 body
// part and the standard attachment markers.
func DefaultCatalog() *Catalog {
	c := &Catalog{}
	c.Entries = append(c.Entries, Entry{Name: "Cage", Category: CategoryCage})
	for _, part := range r15Parts {
		c.Entries = append(c.Entries, Entry{Name: part + "_OuterCage", Category: CategoryCage, Bone: part})
	}
	for _, a := range attachmentBones {
		c.Entries = append(c.Entries, Entry{Name: a.name, Category: CategoryAttachment, Bone: a.bone})
	}
	return c
}

// Validate rejects unnamed and duplicate entries.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Entries))
	for i, e := range c.Entries {
		if e.Name == "" {
			return fmt.Errorf("%w: entry %d", ErrEmptyEntryName, i)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// Count returns the number of entries in the category.
func (c *Catalog) Count(cat Category) int {
	n := 0
	for _, e := range c.Entries {
		if e.Category == cat {
			n++
		}
	}
	return n
}

// ParseCatalog parses a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalog reads a YAML catalog from disk.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Marshal encodes the catalog as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
