package brackets

import (
	"context"

	"github.com/koc-community/tournament-system/models"
)

// Seeding is the ordered list of participant ids entering a stage.
// A nil entry is a BYE slot. The service layer pads the list to a power of
// two before handing it to a generator.
type Seeding []*int

// GenerateParams carries everything a generator needs to build a stage tree.
type GenerateParams struct {
	Tournament *models.Tournament
	Seeding    Seeding
	Settings   models.StageSettings
}

// Generator builds a complete in-memory stage tree (rounds, matches, games)
// from a seeding. Generators never touch storage; persisting the tree is the
// caller's job.
type Generator interface {
	Generate(ctx context.Context, params GenerateParams) (*models.Stage, error)

	Name() string
}
