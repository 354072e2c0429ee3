package procedures

import (
	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

// Options Settings shared by every procedure
type Options struct {
	// DryRun Only log what would be deleted
	DryRun bool

	// Wait Whether to block until each resource reaches a terminal state.
	// Some families always wait for dependents regardless of this
	Wait bool

	// WaitConfig Bounds every wait and poll, must be valid even if Wait is
	// false
	WaitConfig procedurehelpers.WaitConfig
}
