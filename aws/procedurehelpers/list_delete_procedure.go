package procedurehelpers

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ListDeleteProcedure A procedure for AWS resources that can be listed, then
// deleted one at a time, optionally waiting for each deletion to finish
// before moving on to the next. Resources with dependents that must be
// removed first (node groups, services) use DependentsFunc
type ListDeleteProcedure[Resource any, ClientStruct any] struct {
	ItemType    string       // The type of resource e.g. "lambda-function"
	Description string       // Human readable name used in log lines e.g. "Lambda function"
	Client      ClientStruct // The AWS API client
	Region      string       // The AWS region this is related to

	// DryRun Lists and logs resources without making any changes
	DryRun bool

	// Wait Whether to call WaitFunc after each delete
	Wait       bool
	WaitConfig WaitConfig

	// ListFunc Lists all resources of this type in the region
	ListFunc func(ctx context.Context, client ClientStruct) ([]Resource, error)

	// NameFunc Returns the identifier of the resource that is used in log
	// lines and reports
	NameFunc func(resource Resource) string

	// SkipFunc Optional. Returns a reason if the resource should be left
	// alone, or an empty string if it should be deleted
	SkipFunc func(ctx context.Context, client ClientStruct, resource Resource) (string, error)

	// DependentsFunc Optional. Deletes anything that must be gone before the
	// resource itself can be deleted. Returns a reason if the resource can't
	// be deleted yet, in which case it is recorded as unconfirmed
	DependentsFunc func(ctx context.Context, client ClientStruct, resource Resource, report *Report) (string, error)

	// DeleteFunc Issues the delete/terminate call
	DeleteFunc func(ctx context.Context, client ClientStruct, resource Resource) error

	// WaitFunc Blocks until the resource has reached a terminal state. Only
	// required if Wait is true
	WaitFunc func(ctx context.Context, client ClientStruct, resource Resource, cfg WaitConfig) error
}

// Validate Checks that the procedure has been set up correctly
func (p *ListDeleteProcedure[Resource, ClientStruct]) Validate() error {
	if p.ItemType == "" {
		return errors.New("ItemType is empty")
	}

	if p.ListFunc == nil {
		return errors.New("ListFunc is nil")
	}

	if p.NameFunc == nil {
		return errors.New("NameFunc is nil")
	}

	if p.DeleteFunc == nil {
		return errors.New("DeleteFunc is nil")
	}

	if p.Wait {
		if p.WaitFunc == nil {
			return errors.New("WaitFunc is nil but Wait is true")
		}

		if err := p.WaitConfig.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func (p *ListDeleteProcedure[Resource, ClientStruct]) Type() string {
	return p.ItemType
}

func (p *ListDeleteProcedure[Resource, ClientStruct]) description() string {
	if p.Description == "" {
		return p.ItemType
	}

	return p.Description
}

// Teardown Lists all resources then deletes them one by one. Listing and
// delete errors stop the procedure, except for delete calls that say the
// resource is already gone
func (p *ListDeleteProcedure[Resource, ClientStruct]) Teardown(ctx context.Context) (*Report, error) {
	err := p.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid %v procedure: %w", p.ItemType, err)
	}

	report := NewReport(p.ItemType, p.Region)

	resources, err := p.ListFunc(ctx, p.Client)
	if err != nil {
		return report, fmt.Errorf("error listing %v in region %v: %w", p.ItemType, p.Region, err)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("ovm.teardown.found", len(resources)))

	for _, resource := range resources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		err = p.teardownOne(ctx, resource, report)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

func (p *ListDeleteProcedure[Resource, ClientStruct]) teardownOne(ctx context.Context, resource Resource, report *Report) error {
	name := p.NameFunc(resource)
	lf := log.Fields{
		"type":   p.ItemType,
		"region": p.Region,
		"name":   name,
	}
	span := trace.SpanFromContext(ctx)

	if p.SkipFunc != nil {
		reason, err := p.SkipFunc(ctx, p.Client, resource)
		if err != nil {
			return fmt.Errorf("error checking %v %v in region %v: %w", p.ItemType, name, p.Region, err)
		}

		if reason != "" {
			log.WithContext(ctx).WithFields(lf).WithField("reason", reason).Infof("Skipping %v", p.description())
			span.AddEvent("Skipped resource", trace.WithAttributes(
				attribute.String("ovm.teardown.name", name),
				attribute.String("ovm.teardown.reason", reason),
			))
			report.Skipped = append(report.Skipped, name)

			return nil
		}
	}

	if p.DependentsFunc != nil {
		blocked, err := p.DependentsFunc(ctx, p.Client, resource, report)
		if err != nil {
			return fmt.Errorf("error deleting dependents of %v %v in region %v: %w", p.ItemType, name, p.Region, err)
		}

		if blocked != "" {
			log.WithContext(ctx).WithFields(lf).WithField("reason", blocked).Errorf("Not deleting %v", p.description())
			report.Unconfirmed = append(report.Unconfirmed, name)

			return nil
		}
	}

	if p.DryRun {
		log.WithContext(ctx).WithFields(lf).Infof("Would delete %v", p.description())
		report.Planned = append(report.Planned, name)

		return nil
	}

	log.WithContext(ctx).WithFields(lf).Infof("Deleting %v", p.description())

	err := p.DeleteFunc(ctx, p.Client, resource)
	if err != nil {
		if IsNotFound(err) {
			log.WithContext(ctx).WithFields(lf).Infof("%v is already gone", p.description())
			report.Deleted = append(report.Deleted, name)

			return nil
		}

		return fmt.Errorf("error deleting %v %v in region %v: %w", p.ItemType, name, p.Region, err)
	}

	if p.Wait {
		err = p.WaitFunc(ctx, p.Client, resource, p.WaitConfig)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			log.WithContext(ctx).WithFields(lf).WithError(err).Errorf("Could not confirm deletion of %v", p.description())
			span.AddEvent("Deletion unconfirmed", trace.WithAttributes(
				attribute.String("ovm.teardown.name", name),
				attribute.String("error", err.Error()),
			))
			report.RecordWaitFailure(name, err)

			return nil
		}

		log.WithContext(ctx).WithFields(lf).Infof("Deleted %v", p.description())
	}

	report.Deleted = append(report.Deleted, name)

	return nil
}
