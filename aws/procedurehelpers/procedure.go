package procedurehelpers

import (
	"context"
	"errors"
)

// Procedure Deletes every resource of a single type in a single region. Each
// resource family implements this so that the driver can run them in a
// configurable order
type Procedure interface {
	// Type The type of resource that this procedure tears down e.g.
	// "ec2-instance"
	Type() string

	// Teardown Lists and deletes all resources of this type. Errors from
	// listing or delete calls are returned and should abort the run, failed
	// or timed out waits are recorded in the report instead
	Teardown(ctx context.Context) (*Report, error)
}

// Report What happened to each resource that a procedure found
type Report struct {
	Type   string
	Region string

	// Resources that a delete call was issued for (and confirmed if waiting
	// was enabled)
	Deleted []string
	// Resources that were intentionally left alone
	Skipped []string
	// Resources that would have been deleted if this wasn't a dry run
	Planned []string
	// Resources where the wait for a terminal state failed
	Unconfirmed []string
	// Resources where the wait for a terminal state ran out of time or
	// attempts
	TimedOut []string
}

func NewReport(itemType, region string) *Report {
	return &Report{
		Type:   itemType,
		Region: region,
	}
}

// RecordWaitFailure Records a resource whose deletion could not be confirmed,
// keeping timeouts separate from other failures
func (r *Report) RecordWaitFailure(name string, err error) {
	if errors.Is(err, ErrDeletionTimedOut) {
		r.TimedOut = append(r.TimedOut, name)
	} else {
		r.Unconfirmed = append(r.Unconfirmed, name)
	}
}

// Merge Appends the results of another report into this one
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}

	r.Deleted = append(r.Deleted, other.Deleted...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Planned = append(r.Planned, other.Planned...)
	r.Unconfirmed = append(r.Unconfirmed, other.Unconfirmed...)
	r.TimedOut = append(r.TimedOut, other.TimedOut...)
}

// Failed Returns true if any deletion could not be confirmed
func (r *Report) Failed() bool {
	return len(r.Unconfirmed) > 0 || len(r.TimedOut) > 0
}
