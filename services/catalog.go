package services

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"progress-ledger/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the immutable set of badge and milestone definitions.
type Catalog struct {
	badges     []models.Badge
	milestones []models.Milestone
	badgeIdx   map[string]int
	mileIdx    map[string]int
}

type catalogFile struct {
	Badges     []models.Badge     `yaml:"badges"`
	Milestones []models.Milestone `yaml:"milestones"`
}

// LoadCatalog reads the catalog from path, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		badges:     f.Badges,
		milestones: f.Milestones,
		badgeIdx:   make(map[string]int, len(f.Badges)),
		mileIdx:    make(map[string]int, len(f.Milestones)),
	}
	for _, b := range c.badges {
		switch {
		case b.Key == "" || b.Name == "" || b.Category == "":
			return nil, fmt.Errorf("badge %q: key, name and category are required", b.Key)
		case !b.RequirementType.Valid():
			return nil, fmt.Errorf("badge %q: unknown requirement_type %q", b.Key, b.RequirementType)
		case b.RequirementValue <= 0:
			return nil, fmt.Errorf("badge %q: requirement_value must be positive", b.Key)
		case b.Tier < 1 || b.Tier > 4:
			return nil, fmt.Errorf("badge %q: tier must be 1-4", b.Key)
		}
	}
	for _, m := range c.milestones {
		switch {
		case m.Key == "" || m.Name == "":
			return nil, fmt.Errorf("milestone %q: key and name are required", m.Key)
		case m.RequirementType() == "":
			return nil, fmt.Errorf("milestone %q: unknown category %q", m.Key, m.Category)
		case m.Threshold <= 0:
			return nil, fmt.Errorf("milestone %q: threshold must be positive", m.Key)
		}
	}

	sort.SliceStable(c.badges, func(i, j int) bool {
		a, b := c.badges[i], c.badges[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.RequirementValue != b.RequirementValue {
			return a.RequirementValue < b.RequirementValue
		}
		return a.Key < b.Key
	})
	sort.SliceStable(c.milestones, func(i, j int) bool {
		a, b := c.milestones[i], c.milestones[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Threshold != b.Threshold {
			return a.Threshold < b.Threshold
		}
		return a.Key < b.Key
	})

	for i, b := range c.badges {
		if _, dup := c.badgeIdx[b.Key]; dup {
			return nil, fmt.Errorf("duplicate badge key %q", b.Key)
		}
		c.badgeIdx[b.Key] = i
	}
	for i, m := range c.milestones {
		if _, dup := c.mileIdx[m.Key]; dup {
			return nil, fmt.Errorf("duplicate milestone key %q", m.Key)
		}
		c.mileIdx[m.Key] = i
	}
	return c, nil
}

// Badges returns badges ordered by category, then requirement value.
// An empty category returns all of them.
func (c *Catalog) Badges(category string) []models.Badge {
	out := make([]models.Badge, 0, len(c.badges))
	for _, b := range c.badges {
		if category == "" || b.Category == category {
			out = append(out, b)
		}
	}
	return out
}

func (c *Catalog) Milestones(category string) []models.Milestone {
	out := make([]models.Milestone, 0, len(c.milestones))
	for _, m := range c.milestones {
		if category == "" || m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

func (c *Catalog) Badge(key string) (models.Badge, bool) {
	i, ok := c.badgeIdx[key]
	if !ok {
		return models.Badge{}, false
	}
	return c.badges[i], true
}

func (c *Catalog) Milestone(key string) (models.Milestone, bool) {
	i, ok := c.mileIdx[key]
	if !ok {
		return models.Milestone{}, false
	}
	return c.milestones[i], true
}

// Sync mirrors the catalog into the badges and milestones tables.
// It runs at startup only; nothing writes these tables afterwards.
func (c *Catalog) Sync(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if badges := c.Badges(""); len(badges) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&badges).Error; err != nil {
				return fmt.Errorf("sync badges: %w", err)
			}
		}
		if milestones := c.Milestones(""); len(milestones) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&milestones).Error; err != nil {
				return fmt.Errorf("sync milestones: %w", err)
			}
		}
		return nil
	})
}
