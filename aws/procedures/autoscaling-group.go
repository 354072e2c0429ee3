package procedures

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

type AutoScalingClient interface {
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
	DeleteAutoScalingGroup(ctx context.Context, params *autoscaling.DeleteAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DeleteAutoScalingGroupOutput, error)
}

func autoScalingGroupListFunc(ctx context.Context, client AutoScalingClient) ([]types.AutoScalingGroup, error) {
	groups := make([]types.AutoScalingGroup, 0)
	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(client, &autoscaling.DescribeAutoScalingGroupsInput{})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		groups = append(groups, out.AutoScalingGroups...)
	}

	return groups, nil
}

// Instances are terminated along with the group
func autoScalingGroupDeleteFunc(ctx context.Context, client AutoScalingClient, group types.AutoScalingGroup) error {
	_, err := client.DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{
		AutoScalingGroupName: group.AutoScalingGroupName,
		ForceDelete:          aws.Bool(true),
	})

	return err
}

// NewAutoScalingGroupProcedure Force deletes every Auto Scaling group. There
// is nothing to wait for since the group's instances are handled by the
// ec2-instance procedure
func NewAutoScalingGroupProcedure(client AutoScalingClient, region string, opts Options) *procedurehelpers.ListDeleteProcedure[types.AutoScalingGroup, AutoScalingClient] {
	return &procedurehelpers.ListDeleteProcedure[types.AutoScalingGroup, AutoScalingClient]{
		ItemType:    "autoscaling-group",
		Description: "Auto Scaling group",
		Client:      client,
		Region:      region,
		DryRun:      opts.DryRun,
		ListFunc:    autoScalingGroupListFunc,
		NameFunc: func(group types.AutoScalingGroup) string {
			return aws.ToString(group.AutoScalingGroupName)
		},
		DeleteFunc: autoScalingGroupDeleteFunc,
	}
}
