package heritage

import (
	"fmt"
	"strings"
)

// Kind names one category of community contribution.
type Kind string

const (
	KindArtifact Kind = "artifact"
	KindStory    Kind = "story"
	KindRecipe   Kind = "recipe"
)

// Kinds lists every known kind in display order.
func Kinds() []Kind {
	return []Kind{KindArtifact, KindStory, KindRecipe}
}

func (k Kind) Valid() bool {
	switch k {
	case KindArtifact, KindStory, KindRecipe:
		return true
	}
	return false
}

// Label returns the human label shown to contributors.
func (k Kind) Label() string {
	switch k {
	case KindArtifact:
		return "Cultural Artifact"
	case KindStory:
		return "Oral Story"
	case KindRecipe:
		return "Traditional Recipe"
	}
	return string(k)
}

// ParseKind accepts canonical names, plurals, and contributor labels.
func ParseKind(raw string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	switch norm {
	case "artifact", "artifacts", "cultural artifact":
		return KindArtifact, nil
	case "story", "stories", "oral story":
		return KindStory, nil
	case "recipe", "recipes", "traditional recipe":
		return KindRecipe, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidContribution, raw)
}
