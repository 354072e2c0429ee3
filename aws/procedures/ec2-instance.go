package procedures

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

func instanceListFunc(ctx context.Context, client EC2Client) ([]types.Instance, error) {
	instances := make([]types.Instance, 0)
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, reservation := range out.Reservations {
			instances = append(instances, reservation.Instances...)
		}
	}

	return instances, nil
}

// Terminated instances stay visible for about an hour
func instanceSkipFunc(_ context.Context, _ EC2Client, instance types.Instance) (string, error) {
	if instance.State != nil && instance.State.Name == types.InstanceStateNameTerminated {
		return "already terminated", nil
	}

	return "", nil
}

func instanceDeleteFunc(ctx context.Context, client EC2Client, instance types.Instance) error {
	_, err := client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{aws.ToString(instance.InstanceId)},
	})

	return err
}

func instanceWaitFunc(ctx context.Context, client EC2Client, instance types.Instance, cfg procedurehelpers.WaitConfig) error {
	waiter := ec2.NewInstanceTerminatedWaiter(client, func(o *ec2.InstanceTerminatedWaiterOptions) {
		o.MinDelay = cfg.InitialInterval
		o.MaxDelay = cfg.MaxInterval
		o.Retryable = procedurehelpers.LimitAttempts(cfg.MaxAttempts, o.Retryable)
	})

	return procedurehelpers.AwaitWaiter(ctx, cfg, func(ctx context.Context, maxWaitDur time.Duration) error {
		return waiter.Wait(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{aws.ToString(instance.InstanceId)},
		}, maxWaitDur)
	})
}

func NewEC2InstanceProcedure(client EC2Client, region string, opts Options) *procedurehelpers.ListDeleteProcedure[types.Instance, EC2Client] {
	return &procedurehelpers.ListDeleteProcedure[types.Instance, EC2Client]{
		ItemType:    "ec2-instance",
		Description: "EC2 instance",
		Client:      client,
		Region:      region,
		DryRun:      opts.DryRun,
		Wait:        opts.Wait,
		WaitConfig:  opts.WaitConfig,
		ListFunc:    instanceListFunc,
		NameFunc: func(instance types.Instance) string {
			return aws.ToString(instance.InstanceId)
		},
		SkipFunc:   instanceSkipFunc,
		DeleteFunc: instanceDeleteFunc,
		WaitFunc:   instanceWaitFunc,
	}
}
