package procedures

import (
	"slices"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

// Clients The AWS clients for a single region
type Clients struct {
	AutoScaling    AutoScalingClient
	ECS            ECSClient
	EC2            EC2Client
	Lambda         LambdaClient
	OpenSearch     OpenSearchClient
	Kinesis        KinesisClient
	Firehose       FirehoseClient
	EKS            EKSClient
	CloudFormation CloudFormationClient
}

type Config struct {
	DryRun     bool
	WaitConfig procedurehelpers.WaitConfig

	// Waits The types that should wait for each deletion to finish
	Waits []string

	// ProtectedStacks Name substrings of stacks to delete first
	ProtectedStacks []string
}

func (c Config) options(itemType string) Options {
	return Options{
		DryRun:     c.DryRun,
		Wait:       slices.Contains(c.Waits, itemType),
		WaitConfig: c.WaitConfig,
	}
}

// All Returns a procedure for every supported type in a region, in the
// default order
func All(clients Clients, region string, config Config) []procedurehelpers.Procedure {
	return []procedurehelpers.Procedure{
		NewAutoScalingGroupProcedure(clients.AutoScaling, region, config.options("autoscaling-group")),
		NewECSClusterProcedure(clients.ECS, region, config.options("ecs-cluster")),
		NewEC2InstanceProcedure(clients.EC2, region, config.options("ec2-instance")),
		NewLambdaFunctionProcedure(clients.Lambda, region, config.options("lambda-function")),
		NewVpcPeeringConnectionProcedure(clients.EC2, region, config.options("ec2-vpc-peering-connection")),
		NewOpenSearchDomainProcedure(clients.OpenSearch, region, config.options("opensearch-domain")),
		NewKinesisStreamProcedure(clients.Kinesis, region, config.options("kinesis-stream")),
		NewFirehoseDeliveryStreamProcedure(clients.Firehose, region, config.options("firehose-delivery-stream")),
		NewEKSClusterProcedure(clients.EKS, region, config.options("eks-cluster")),
		NewCloudFormationStackProcedure(clients.CloudFormation, region, config.ProtectedStacks, config.options("cloudformation-stack")),
	}
}
