package procedures

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

type CloudFormationClient interface {
	ListStacks(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error)
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

// DefaultProtectedStacks Stacks with any of these in their name are deleted
// before everything else since other stacks import their outputs
var DefaultProtectedStacks = []string{"AppPipe", "AppIngestion"}

var (
	// Stacks that failed to delete before are retried in the first pass only
	protectedPassStatuses = []types.StackStatus{
		types.StackStatusCreateComplete,
		types.StackStatusUpdateComplete,
		types.StackStatusRollbackComplete,
		types.StackStatusDeleteFailed,
	}
	generalPassStatuses = []types.StackStatus{
		types.StackStatusCreateComplete,
		types.StackStatusUpdateComplete,
		types.StackStatusRollbackComplete,
	}
)

func stackList(ctx context.Context, client CloudFormationClient, statuses []types.StackStatus) ([]types.StackSummary, error) {
	stacks := make([]types.StackSummary, 0)
	paginator := cloudformation.NewListStacksPaginator(client, &cloudformation.ListStacksInput{
		StackStatusFilter: statuses,
	})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		stacks = append(stacks, out.StackSummaries...)
	}

	return stacks, nil
}

func stackSkipFunc(ctx context.Context, client CloudFormationClient, stack types.StackSummary) (string, error) {
	if stack.ParentId != nil {
		return "nested stack is deleted with its parent", nil
	}

	out, err := client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: stack.StackName,
	})
	if err != nil {
		if procedurehelpers.IsNotFound(err) {
			return "stack no longer exists", nil
		}

		return "", err
	}

	for _, s := range out.Stacks {
		if aws.ToBool(s.EnableTerminationProtection) {
			return "termination protection is enabled", nil
		}
	}

	return "", nil
}

func stackDeleteFunc(ctx context.Context, client CloudFormationClient, stack types.StackSummary) error {
	_, err := client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: stack.StackName,
	})

	return err
}

// Deleted stacks can only be described by ID
func stackWaitFunc(ctx context.Context, client CloudFormationClient, stack types.StackSummary, cfg procedurehelpers.WaitConfig) error {
	waiter := cloudformation.NewStackDeleteCompleteWaiter(client, func(o *cloudformation.StackDeleteCompleteWaiterOptions) {
		o.MinDelay = cfg.InitialInterval
		o.MaxDelay = cfg.MaxInterval
		o.Retryable = procedurehelpers.LimitAttempts(cfg.MaxAttempts, o.Retryable)
	})

	id := stack.StackId
	if id == nil {
		id = stack.StackName
	}

	return procedurehelpers.AwaitWaiter(ctx, cfg, func(ctx context.Context, maxWaitDur time.Duration) error {
		return waiter.Wait(ctx, &cloudformation.DescribeStacksInput{
			StackName: id,
		}, maxWaitDur)
	})
}

// StackProcedure Deletes CloudFormation stacks in two passes. Stacks whose
// name contains one of ProtectedSubstrings go first, then everything else
// that wasn't already handled
type StackProcedure struct {
	Client              CloudFormationClient
	Region              string
	ProtectedSubstrings []string
	Options             Options
}

func NewCloudFormationStackProcedure(client CloudFormationClient, region string, protectedSubstrings []string, opts Options) *StackProcedure {
	return &StackProcedure{
		Client:              client,
		Region:              region,
		ProtectedSubstrings: protectedSubstrings,
		Options:             opts,
	}
}

func (s *StackProcedure) Type() string {
	return "cloudformation-stack"
}

func (s *StackProcedure) isProtected(name string) bool {
	return slices.ContainsFunc(s.ProtectedSubstrings, func(substring string) bool {
		return substring != "" && strings.Contains(name, substring)
	})
}

// pass Builds one pass over the stacks. Every stack that a pass lists is
// added to targeted so that later passes leave it alone
func (s *StackProcedure) pass(statuses []types.StackStatus, targeted map[string]bool, include func(name string) bool) *procedurehelpers.ListDeleteProcedure[types.StackSummary, CloudFormationClient] {
	return &procedurehelpers.ListDeleteProcedure[types.StackSummary, CloudFormationClient]{
		ItemType:    s.Type(),
		Description: "CloudFormation stack",
		Client:      s.Client,
		Region:      s.Region,
		DryRun:      s.Options.DryRun,
		Wait:        s.Options.Wait,
		WaitConfig:  s.Options.WaitConfig,
		ListFunc: func(ctx context.Context, client CloudFormationClient) ([]types.StackSummary, error) {
			stacks, err := stackList(ctx, client, statuses)
			if err != nil {
				return nil, err
			}

			selected := make([]types.StackSummary, 0, len(stacks))

			for _, stack := range stacks {
				name := aws.ToString(stack.StackName)

				if targeted[name] || !include(name) {
					continue
				}

				targeted[name] = true
				selected = append(selected, stack)
			}

			return selected, nil
		},
		NameFunc: func(stack types.StackSummary) string {
			return aws.ToString(stack.StackName)
		},
		SkipFunc:   stackSkipFunc,
		DeleteFunc: stackDeleteFunc,
		WaitFunc:   stackWaitFunc,
	}
}

func (s *StackProcedure) Teardown(ctx context.Context) (*procedurehelpers.Report, error) {
	report := procedurehelpers.NewReport(s.Type(), s.Region)
	targeted := make(map[string]bool)

	passes := []struct {
		name string
		proc *procedurehelpers.ListDeleteProcedure[types.StackSummary, CloudFormationClient]
	}{
		{
			name: "protected",
			proc: s.pass(protectedPassStatuses, targeted, s.isProtected),
		},
		{
			name: "general",
			proc: s.pass(generalPassStatuses, targeted, func(string) bool { return true }),
		},
	}

	for _, p := range passes {
		log.WithContext(ctx).WithFields(log.Fields{
			"type":   s.Type(),
			"region": s.Region,
			"pass":   p.name,
		}).Debug("Starting CloudFormation pass")

		trace.SpanFromContext(ctx).AddEvent("CloudFormation pass", trace.WithAttributes(
			attribute.String("ovm.teardown.pass", p.name),
		))

		passReport, err := p.proc.Teardown(ctx)
		report.Merge(passReport)

		if err != nil {
			return report, err
		}
	}

	return report, nil
}
