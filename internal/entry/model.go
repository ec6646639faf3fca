package entry

import (
	"time"

	"github.com/google/uuid"
)

const (
	CategoryFreedom = "freedom"
	CategoryQuest   = "quest"
	CategoryBounty  = "bounty"
	CategoryOracle  = "oracle"

	DefaultCategory = CategoryFreedom
)

type Entry struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Message        string    `json:"message"`
	Category       string    `json:"category"`
	AuthorUsername string    `json:"author_username"`
	CreatedAt      time.Time `json:"created_at"`
}

// ValidCategory reports whether c is one of the four known categories.
func ValidCategory(c string) bool {
	switch c {
	case CategoryFreedom, CategoryQuest, CategoryBounty, CategoryOracle:
		return true
	}
	return false
}
