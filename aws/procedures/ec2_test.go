package procedures

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type ec2TestClient struct {
	log                *callLog
	Instances          []types.Instance
	PeeringConnections []types.VpcPeeringConnection
	RouteTables        []types.RouteTable
	TerminateErr       error
	DeleteRouteErr     error

	// WaiterState The state reported when an instance is described by ID
	WaiterState types.InstanceStateName
}

func (c *ec2TestClient) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if len(params.InstanceIds) > 0 {
		c.log.add("DescribeInstances %v", params.InstanceIds[0])

		state := c.WaiterState
		if state == "" {
			state = types.InstanceStateNameTerminated
		}

		return &ec2.DescribeInstancesOutput{
			Reservations: []types.Reservation{
				{
					Instances: []types.Instance{
						{
							InstanceId: aws.String(params.InstanceIds[0]),
							State:      &types.InstanceState{Name: state},
						},
					},
				},
			},
		}, nil
	}

	c.log.add("DescribeInstances")

	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{
			{
				Instances: c.Instances,
			},
		},
	}, nil
}

func (c *ec2TestClient) TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	c.log.add("TerminateInstances %v", params.InstanceIds)

	return &ec2.TerminateInstancesOutput{}, c.TerminateErr
}

func (c *ec2TestClient) DescribeVpcPeeringConnections(ctx context.Context, params *ec2.DescribeVpcPeeringConnectionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcPeeringConnectionsOutput, error) {
	c.log.add("DescribeVpcPeeringConnections")

	return &ec2.DescribeVpcPeeringConnectionsOutput{
		VpcPeeringConnections: c.PeeringConnections,
	}, nil
}

func (c *ec2TestClient) DeleteVpcPeeringConnection(ctx context.Context, params *ec2.DeleteVpcPeeringConnectionInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcPeeringConnectionOutput, error) {
	c.log.add("DeleteVpcPeeringConnection %v", aws.ToString(params.VpcPeeringConnectionId))

	return &ec2.DeleteVpcPeeringConnectionOutput{}, nil
}

// DescribeRouteTables Applies the route.vpc-peering-connection-id filter
func (c *ec2TestClient) DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	var connectionID string
	for _, f := range params.Filters {
		if aws.ToString(f.Name) == "route.vpc-peering-connection-id" && len(f.Values) > 0 {
			connectionID = f.Values[0]
		}
	}

	c.log.add("DescribeRouteTables %v", connectionID)

	tables := make([]types.RouteTable, 0)

	for _, table := range c.RouteTables {
		for _, route := range table.Routes {
			if aws.ToString(route.VpcPeeringConnectionId) == connectionID {
				tables = append(tables, table)
				break
			}
		}
	}

	return &ec2.DescribeRouteTablesOutput{
		RouteTables: tables,
	}, nil
}

func (c *ec2TestClient) DeleteRoute(ctx context.Context, params *ec2.DeleteRouteInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error) {
	var destination string
	switch {
	case params.DestinationCidrBlock != nil:
		destination = *params.DestinationCidrBlock
	case params.DestinationIpv6CidrBlock != nil:
		destination = *params.DestinationIpv6CidrBlock
	case params.DestinationPrefixListId != nil:
		destination = *params.DestinationPrefixListId
	}

	c.log.add("DeleteRoute %v %v", aws.ToString(params.RouteTableId), destination)

	return &ec2.DeleteRouteOutput{}, c.DeleteRouteErr
}
