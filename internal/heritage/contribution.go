package heritage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var ErrInvalidContribution = errors.New("heritage: invalid contribution")

const (
	DefaultTitle  = "Untitled"
	DefaultRegion = "Unknown"
	DefaultUser   = "Anonymous"

	DateLayout = "2006-01-02"
)

// Field length caps, counted in runes.
const (
	MaxTitle       = 200
	MaxRegion      = 120
	MaxUser        = 80
	MaxDescription = 4000
	MaxBody        = 20000
	MaxIngredients = 100
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Contribution is one accepted community record.
type Contribution struct {
	ID          string    `json:"id" yaml:"id"`
	Kind        Kind      `json:"kind" yaml:"kind"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Region      string    `json:"region" yaml:"region"`
	User        string    `json:"user" yaml:"user"`
	Date        string    `json:"date" yaml:"date"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	File        string    `json:"file,omitempty" yaml:"file,omitempty"`
	Body        string    `json:"body,omitempty" yaml:"body,omitempty"`
	Ingredients []string  `json:"ingredients,omitempty" yaml:"ingredients,omitempty"`
	Session     string    `json:"session,omitempty" yaml:"session,omitempty"`
}

// Submission is raw contributor input before defaults are applied.
type Submission struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Region      string   `json:"region"`
	User        string   `json:"user"`
	File        string   `json:"file,omitempty"`
	Body        string   `json:"body,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
	Session     string   `json:"-"`
}

// NewContribution applies field defaults, stamps the submission day, and
// assigns a fresh id. The result is validated before it is returned.
func NewContribution(kind Kind, sub Submission, now time.Time) (Contribution, error) {
	now = now.UTC()
	c := Contribution{
		ID:          uuid.NewString(),
		Kind:        kind,
		Title:       orDefault(sub.Title, DefaultTitle),
		Description: strings.TrimSpace(sub.Description),
		Region:      orDefault(sub.Region, DefaultRegion),
		User:        orDefault(sub.User, DefaultUser),
		Date:        now.Format(DateLayout),
		CreatedAt:   now,
		File:        strings.TrimSpace(sub.File),
		Body:        strings.TrimSpace(sub.Body),
		Ingredients: cleanList(sub.Ingredients),
		Session:     strings.TrimSpace(sub.Session),
	}
	if err := Validate(c); err != nil {
		return Contribution{}, err
	}
	return c, nil
}

// Validate checks kind-specific requirements and field caps.
func Validate(c Contribution) error {
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidContribution, c.Kind)
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidContribution)
	}
	caps := []struct {
		field string
		value string
		max   int
	}{
		{"title", c.Title, MaxTitle},
		{"region", c.Region, MaxRegion},
		{"user", c.User, MaxUser},
		{"description", c.Description, MaxDescription},
		{"body", c.Body, MaxBody},
	}
	for _, cp := range caps {
		if utf8.RuneCountInString(cp.value) > cp.max {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidContribution, cp.field, cp.max)
		}
	}

	switch c.Kind {
	case KindArtifact:
		if c.File == "" {
			return fmt.Errorf("%w: artifact requires an image file", ErrInvalidContribution)
		}
		if !IsImageName(c.File) {
			return fmt.Errorf("%w: artifact file %q must be jpg, jpeg or png", ErrInvalidContribution, c.File)
		}
	case KindStory:
		if c.Body == "" {
			return fmt.Errorf("%w: story requires a body", ErrInvalidContribution)
		}
	case KindRecipe:
		if len(c.Ingredients) == 0 {
			return fmt.Errorf("%w: recipe requires ingredients", ErrInvalidContribution)
		}
		if len(c.Ingredients) > MaxIngredients {
			return fmt.Errorf("%w: recipe exceeds %d ingredients", ErrInvalidContribution, MaxIngredients)
		}
		if c.Body == "" {
			return fmt.Errorf("%w: recipe requires a method", ErrInvalidContribution)
		}
	}
	return nil
}

// IsImageName reports whether name carries an accepted image extension.
func IsImageName(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(strings.TrimSpace(name)))]
}

// Heading is the browse label for a contribution.
func Heading(c Contribution) string {
	return fmt.Sprintf("%s from %s", c.Title, c.Region)
}

// ThankYou is the acknowledgement returned after a successful submission.
func ThankYou(c Contribution) string {
	return fmt.Sprintf("Thank you for contributing %s!", c.Title)
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		if v := strings.TrimSpace(raw); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
