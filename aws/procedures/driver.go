package procedures

import (
	"context"
	"errors"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
	"github.com/overmindtech/teardown/tracing"
)

// DefaultOrder The order that resource types are torn down in. Things that
// create other resources (Auto Scaling groups, ECS services) go before the
// resources they create, and stacks go last so that anything they own has
// already been cleaned up
var DefaultOrder = []string{
	"autoscaling-group",
	"ecs-cluster",
	"ec2-instance",
	"lambda-function",
	"ec2-vpc-peering-connection",
	"opensearch-domain",
	"kinesis-stream",
	"firehose-delivery-stream",
	"eks-cluster",
	"cloudformation-stack",
}

// DefaultWaits The types that wait for each deletion to finish by default
var DefaultWaits = []string{
	"ecs-cluster",
}

// WaitableTypes The types that can wait for their deletions to finish. The
// rest either always wait or have nothing to wait on
var WaitableTypes = []string{
	"ecs-cluster",
	"ec2-instance",
	"eks-cluster",
	"cloudformation-stack",
}

// ValidateWaits Checks that every name is a type that can wait
func ValidateWaits(names []string) error {
	err := ValidateTypes(names)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range names {
		if !slices.Contains(WaitableTypes, name) {
			errs = append(errs, fmt.Errorf("resource type %q cannot wait, types that can are %v", name, WaitableTypes))
		}
	}

	return errors.Join(errs...)
}

// ValidateTypes Checks that every name is a known type and that none are
// repeated
func ValidateTypes(names []string) error {
	seen := make(map[string]bool, len(names))
	var errs []error

	for _, name := range names {
		if !slices.Contains(DefaultOrder, name) {
			errs = append(errs, fmt.Errorf("unknown resource type %q, valid types are %v", name, DefaultOrder))
			continue
		}

		if seen[name] {
			errs = append(errs, fmt.Errorf("resource type %q is listed more than once", name))
		}

		seen[name] = true
	}

	return errors.Join(errs...)
}

// Driver Runs procedures one after another in a fixed order
type Driver struct {
	Region     string
	Procedures []procedurehelpers.Procedure
}

// NewDriver Selects the procedures named in order from available. Every
// name must be valid and have a matching procedure
func NewDriver(region string, order []string, available []procedurehelpers.Procedure) (*Driver, error) {
	if len(order) == 0 {
		return nil, errors.New("no resource types to tear down")
	}

	err := ValidateTypes(order)
	if err != nil {
		return nil, err
	}

	byType := make(map[string]procedurehelpers.Procedure, len(available))
	for _, p := range available {
		byType[p.Type()] = p
	}

	d := &Driver{
		Region:     region,
		Procedures: make([]procedurehelpers.Procedure, 0, len(order)),
	}

	for _, name := range order {
		p, ok := byType[name]
		if !ok {
			return nil, fmt.Errorf("no procedure available for %v", name)
		}

		d.Procedures = append(d.Procedures, p)
	}

	return d, nil
}

// Run Tears down each type in turn. The first error stops the run, the
// reports from every procedure that ran are returned either way
func (d *Driver) Run(ctx context.Context) ([]*procedurehelpers.Report, error) {
	reports := make([]*procedurehelpers.Report, 0, len(d.Procedures))

	for _, p := range d.Procedures {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		report, err := d.runOne(ctx, p)
		if report != nil {
			reports = append(reports, report)
		}

		if err != nil {
			return reports, err
		}
	}

	return reports, nil
}

func (d *Driver) runOne(ctx context.Context, p procedurehelpers.Procedure) (*procedurehelpers.Report, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Teardown "+p.Type(), trace.WithAttributes(
		attribute.String("ovm.teardown.type", p.Type()),
		attribute.String("ovm.teardown.region", d.Region),
	))
	defer span.End()

	lf := log.Fields{
		"type":   p.Type(),
		"region": d.Region,
	}

	log.WithContext(ctx).WithFields(lf).Info("Starting teardown")

	report, err := p.Teardown(ctx)

	if report != nil {
		span.SetAttributes(
			attribute.Int("ovm.teardown.deleted", len(report.Deleted)),
			attribute.Int("ovm.teardown.skipped", len(report.Skipped)),
			attribute.Int("ovm.teardown.planned", len(report.Planned)),
			attribute.Int("ovm.teardown.unconfirmed", len(report.Unconfirmed)),
			attribute.Int("ovm.teardown.timedOut", len(report.TimedOut)),
		)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithContext(ctx).WithFields(lf).WithError(err).Error("Teardown failed")

		return report, err
	}

	log.WithContext(ctx).WithFields(lf).Info("Finished teardown")

	return report, nil
}
