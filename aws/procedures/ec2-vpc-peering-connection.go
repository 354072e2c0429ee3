package procedures

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	log "github.com/sirupsen/logrus"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

// Peering connections in these states can't be deleted and disappear on their
// own
var finishedPeeringStates = map[types.VpcPeeringConnectionStateReasonCode]bool{
	types.VpcPeeringConnectionStateReasonCodeDeleted:  true,
	types.VpcPeeringConnectionStateReasonCodeRejected: true,
	types.VpcPeeringConnectionStateReasonCodeFailed:   true,
	types.VpcPeeringConnectionStateReasonCodeExpired:  true,
}

func peeringListFunc(ctx context.Context, client EC2Client) ([]types.VpcPeeringConnection, error) {
	connections := make([]types.VpcPeeringConnection, 0)
	paginator := ec2.NewDescribeVpcPeeringConnectionsPaginator(client, &ec2.DescribeVpcPeeringConnectionsInput{})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		connections = append(connections, out.VpcPeeringConnections...)
	}

	return connections, nil
}

func peeringSkipFunc(_ context.Context, _ EC2Client, connection types.VpcPeeringConnection) (string, error) {
	if connection.Status != nil && finishedPeeringStates[connection.Status.Code] {
		return fmt.Sprintf("connection is %v", connection.Status.Code), nil
	}

	return "", nil
}

// routeDestination Describes where a route goes, for logging
func routeDestination(route types.Route) string {
	switch {
	case route.DestinationCidrBlock != nil:
		return *route.DestinationCidrBlock
	case route.DestinationIpv6CidrBlock != nil:
		return *route.DestinationIpv6CidrBlock
	case route.DestinationPrefixListId != nil:
		return *route.DestinationPrefixListId
	default:
		return ""
	}
}

// peeringRoutesFunc Removes every route that targets the connection. Routes
// are left behind as blackholes otherwise
func peeringRoutesFunc(dryRun bool) func(ctx context.Context, client EC2Client, connection types.VpcPeeringConnection, report *procedurehelpers.Report) (string, error) {
	return func(ctx context.Context, client EC2Client, connection types.VpcPeeringConnection, report *procedurehelpers.Report) (string, error) {
		connectionID := aws.ToString(connection.VpcPeeringConnectionId)

		paginator := ec2.NewDescribeRouteTablesPaginator(client, &ec2.DescribeRouteTablesInput{
			Filters: []types.Filter{
				{
					Name:   aws.String("route.vpc-peering-connection-id"),
					Values: []string{connectionID},
				},
			},
		})

		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				return "", err
			}

			for _, table := range out.RouteTables {
				for _, route := range table.Routes {
					if aws.ToString(route.VpcPeeringConnectionId) != connectionID {
						continue
					}

					name := connectionID + "/" + aws.ToString(table.RouteTableId) + "/" + routeDestination(route)
					lf := log.Fields{
						"region":      report.Region,
						"name":        connectionID,
						"route-table": aws.ToString(table.RouteTableId),
						"destination": routeDestination(route),
					}

					if dryRun {
						log.WithContext(ctx).WithFields(lf).Info("Would delete route")
						report.Planned = append(report.Planned, name)
						continue
					}

					log.WithContext(ctx).WithFields(lf).Info("Deleting route")

					_, err = client.DeleteRoute(ctx, &ec2.DeleteRouteInput{
						RouteTableId:             table.RouteTableId,
						DestinationCidrBlock:     route.DestinationCidrBlock,
						DestinationIpv6CidrBlock: route.DestinationIpv6CidrBlock,
						DestinationPrefixListId:  route.DestinationPrefixListId,
					})
					if err != nil && !procedurehelpers.IsNotFound(err) {
						return "", fmt.Errorf("error deleting route to %v from %v: %w", routeDestination(route), aws.ToString(table.RouteTableId), err)
					}

					report.Deleted = append(report.Deleted, name)
				}
			}
		}

		return "", nil
	}
}

func peeringDeleteFunc(ctx context.Context, client EC2Client, connection types.VpcPeeringConnection) error {
	_, err := client.DeleteVpcPeeringConnection(ctx, &ec2.DeleteVpcPeeringConnectionInput{
		VpcPeeringConnectionId: connection.VpcPeeringConnectionId,
	})

	return err
}

// NewVpcPeeringConnectionProcedure Deletes every active VPC peering
// connection along with the routes that use it
func NewVpcPeeringConnectionProcedure(client EC2Client, region string, opts Options) *procedurehelpers.ListDeleteProcedure[types.VpcPeeringConnection, EC2Client] {
	return &procedurehelpers.ListDeleteProcedure[types.VpcPeeringConnection, EC2Client]{
		ItemType:    "ec2-vpc-peering-connection",
		Description: "VPC peering connection",
		Client:      client,
		Region:      region,
		DryRun:      opts.DryRun,
		ListFunc:    peeringListFunc,
		NameFunc: func(connection types.VpcPeeringConnection) string {
			return aws.ToString(connection.VpcPeeringConnectionId)
		},
		SkipFunc:       peeringSkipFunc,
		DependentsFunc: peeringRoutesFunc(opts.DryRun),
		DeleteFunc:     peeringDeleteFunc,
	}
}
