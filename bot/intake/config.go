package intake

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	defaultDeliveryTimeout = 15 * time.Second
	defaultSweepInterval   = time.Minute
)

// DefaultCategories and DefaultSemesters are offered when none are configured.
var (
	DefaultCategories = []string{"Notes", "Exam Papers", "Presentation", "Other"}
	DefaultSemesters  = []string{"1st", "2nd", "3rd", "4th", "5th", "6th"}
)

// Catalog lists the accepted answers of the choice steps and the file
// extensions accepted per category.
type Catalog struct {
	Categories []string `yaml:"categories"`
	Semesters  []string `yaml:"semesters"`
	// AllowList maps a category to its extensions, without the dot.
	AllowList map[string][]string `yaml:"allow_list" ignored:"true"`
	// DefaultExtensions applies to categories missing from AllowList.
	DefaultExtensions []string `yaml:"default_extensions"`
}

// DefaultCatalog returns the stock categories, semesters and allow-lists.
func DefaultCatalog() Catalog {
	return Catalog{
		Categories:        slices.Clone(DefaultCategories),
		Semesters:         slices.Clone(DefaultSemesters),
		AllowList:         map[string][]string{"Presentation": {"pptx"}},
		DefaultExtensions: []string{"pdf"},
	}
}

// Normalize fills defaults, cleans up values and validates the catalog.
func (c *Catalog) Normalize() error {
	def := DefaultCatalog()
	c.Categories = cleanChoices(c.Categories)
	if len(c.Categories) == 0 {
		c.Categories = def.Categories
	}
	c.Semesters = cleanChoices(c.Semesters)
	if len(c.Semesters) == 0 {
		c.Semesters = def.Semesters
	}
	c.DefaultExtensions = cleanExtensions(c.DefaultExtensions)
	if c.DefaultExtensions == nil && c.AllowList == nil {
		c.DefaultExtensions = def.DefaultExtensions
	}

	if c.AllowList == nil {
		c.AllowList = make(map[string][]string)
		for category, exts := range def.AllowList {
			if slices.Contains(c.Categories, category) {
				c.AllowList[category] = exts
			}
		}
	} else {
		cleaned := make(map[string][]string, len(c.AllowList))
		for category, exts := range c.AllowList {
			category = strings.TrimSpace(category)
			if !slices.Contains(c.Categories, category) {
				return fmt.Errorf("intake.allow_list: unknown category %q", category)
			}
			cleaned[category] = cleanExtensions(exts)
		}
		c.AllowList = cleaned
	}

	for _, category := range c.Categories {
		if len(c.Extensions(category)) == 0 {
			return fmt.Errorf("intake: category %q has no allowed extensions", category)
		}
	}
	return nil
}

// Extensions returns the extensions accepted for category.
func (c Catalog) Extensions(category string) []string {
	if exts, ok := c.AllowList[category]; ok && len(exts) > 0 {
		return exts
	}
	return c.DefaultExtensions
}

// Config is the dialogue configuration. It is immutable once the engine starts.
type Config struct {
	Catalog `yaml:",inline"`

	OperatorChatID  int64         `yaml:"operator_chat_id" envconfig:"INTAKE_OPERATOR_CHAT_ID"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" envconfig:"INTAKE_DELIVERY_TIMEOUT"`
	// SessionTTL expires idle sessions; zero keeps them until cancelled or restarted.
	SessionTTL    time.Duration `yaml:"session_ttl" envconfig:"INTAKE_SESSION_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"INTAKE_SWEEP_INTERVAL"`
}

// Normalize fills defaults and validates the configuration.
func (c *Config) Normalize() error {
	if c == nil {
		return fmt.Errorf("intake: nil config")
	}
	if c.OperatorChatID == 0 {
		return fmt.Errorf("intake.operator_chat_id is required")
	}
	if c.DeliveryTimeout < 0 || c.SessionTTL < 0 || c.SweepInterval < 0 {
		return fmt.Errorf("intake: durations must be >= 0")
	}
	if c.DeliveryTimeout == 0 {
		c.DeliveryTimeout = defaultDeliveryTimeout
	}
	if c.SessionTTL > 0 && c.SweepInterval == 0 {
		c.SweepInterval = min(defaultSweepInterval, c.SessionTTL)
	}
	return c.Catalog.Normalize()
}

func cleanChoices(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func cleanExtensions(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v), "."))
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
