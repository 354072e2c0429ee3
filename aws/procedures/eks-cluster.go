package procedures

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/eks/types"
	log "github.com/sirupsen/logrus"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

type EKSClient interface {
	ListClusters(ctx context.Context, params *eks.ListClustersInput, optFns ...func(*eks.Options)) (*eks.ListClustersOutput, error)
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
	DeleteCluster(ctx context.Context, params *eks.DeleteClusterInput, optFns ...func(*eks.Options)) (*eks.DeleteClusterOutput, error)
	ListNodegroups(ctx context.Context, params *eks.ListNodegroupsInput, optFns ...func(*eks.Options)) (*eks.ListNodegroupsOutput, error)
	DescribeNodegroup(ctx context.Context, params *eks.DescribeNodegroupInput, optFns ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error)
	DeleteNodegroup(ctx context.Context, params *eks.DeleteNodegroupInput, optFns ...func(*eks.Options)) (*eks.DeleteNodegroupOutput, error)
}

func clusterListFunc(ctx context.Context, client EKSClient) ([]string, error) {
	names := make([]string, 0)
	paginator := eks.NewListClustersPaginator(client, &eks.ListClustersInput{})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		names = append(names, out.Clusters...)
	}

	return names, nil
}

func nodegroupList(ctx context.Context, client EKSClient, clusterName string) ([]string, error) {
	names := make([]string, 0)
	paginator := eks.NewListNodegroupsPaginator(client, &eks.ListNodegroupsInput{
		ClusterName: aws.String(clusterName),
	})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		names = append(names, out.Nodegroups...)
	}

	return names, nil
}

func nodegroupWait(ctx context.Context, client EKSClient, clusterName, nodegroupName string, cfg procedurehelpers.WaitConfig) error {
	waiter := eks.NewNodegroupDeletedWaiter(client, func(o *eks.NodegroupDeletedWaiterOptions) {
		o.MinDelay = cfg.InitialInterval
		o.MaxDelay = cfg.MaxInterval
		o.Retryable = procedurehelpers.LimitAttempts(cfg.MaxAttempts, o.Retryable)
	})

	return procedurehelpers.AwaitWaiter(ctx, cfg, func(ctx context.Context, maxWaitDur time.Duration) error {
		return waiter.Wait(ctx, &eks.DescribeNodegroupInput{
			ClusterName:   aws.String(clusterName),
			NodegroupName: aws.String(nodegroupName),
		}, maxWaitDur)
	})
}

// nodegroupsFunc Deletes every node group in the cluster and waits for each
// one to go. The cluster can't be deleted while any node group is left so
// this always waits, and blocks the cluster delete if a wait fails
func nodegroupsFunc(opts Options) func(ctx context.Context, client EKSClient, clusterName string, report *procedurehelpers.Report) (string, error) {
	return func(ctx context.Context, client EKSClient, clusterName string, report *procedurehelpers.Report) (string, error) {
		nodegroups, err := nodegroupList(ctx, client, clusterName)
		if err != nil {
			return "", err
		}

		var blocked []string

		for _, nodegroup := range nodegroups {
			name := clusterName + "/" + nodegroup
			lf := log.Fields{
				"type":    "eks-nodegroup",
				"region":  report.Region,
				"cluster": clusterName,
				"name":    nodegroup,
			}

			if opts.DryRun {
				log.WithContext(ctx).WithFields(lf).Info("Would delete EKS node group")
				report.Planned = append(report.Planned, name)
				continue
			}

			log.WithContext(ctx).WithFields(lf).Info("Deleting EKS node group")

			_, err = client.DeleteNodegroup(ctx, &eks.DeleteNodegroupInput{
				ClusterName:   aws.String(clusterName),
				NodegroupName: aws.String(nodegroup),
			})
			if err != nil && !procedurehelpers.IsNotFound(err) {
				return "", fmt.Errorf("error deleting node group %v: %w", nodegroup, err)
			}

			err = nodegroupWait(ctx, client, clusterName, nodegroup, opts.WaitConfig)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", ctxErr
				}

				log.WithContext(ctx).WithFields(lf).WithError(err).Error("Could not confirm deletion of EKS node group")
				report.RecordWaitFailure(name, err)
				blocked = append(blocked, nodegroup)

				continue
			}

			log.WithContext(ctx).WithFields(lf).Info("Deleted EKS node group")
			report.Deleted = append(report.Deleted, name)
		}

		if len(blocked) > 0 {
			return fmt.Sprintf("node groups %v were not confirmed deleted", blocked), nil
		}

		return "", nil
	}
}

// Checked before any node group is touched, a cluster that is going away
// has already had its node groups deleted
func clusterSkipFunc(ctx context.Context, client EKSClient, clusterName string) (string, error) {
	out, err := client.DescribeCluster(ctx, &eks.DescribeClusterInput{
		Name: aws.String(clusterName),
	})
	if err != nil {
		if procedurehelpers.IsNotFound(err) {
			return "cluster no longer exists", nil
		}

		return "", err
	}

	if out.Cluster != nil && out.Cluster.Status == types.ClusterStatusDeleting {
		return "cluster is already being deleted", nil
	}

	return "", nil
}

func clusterDeleteFunc(ctx context.Context, client EKSClient, clusterName string) error {
	_, err := client.DeleteCluster(ctx, &eks.DeleteClusterInput{
		Name: aws.String(clusterName),
	})

	return err
}

func clusterWaitFunc(ctx context.Context, client EKSClient, clusterName string, cfg procedurehelpers.WaitConfig) error {
	waiter := eks.NewClusterDeletedWaiter(client, func(o *eks.ClusterDeletedWaiterOptions) {
		o.MinDelay = cfg.InitialInterval
		o.MaxDelay = cfg.MaxInterval
		o.Retryable = procedurehelpers.LimitAttempts(cfg.MaxAttempts, o.Retryable)
	})

	return procedurehelpers.AwaitWaiter(ctx, cfg, func(ctx context.Context, maxWaitDur time.Duration) error {
		return waiter.Wait(ctx, &eks.DescribeClusterInput{
			Name: aws.String(clusterName),
		}, maxWaitDur)
	})
}

// NewEKSClusterProcedure Deletes every EKS cluster once all of its node
// groups are gone. opts.Wait only controls waiting for the cluster itself
func NewEKSClusterProcedure(client EKSClient, region string, opts Options) *procedurehelpers.ListDeleteProcedure[string, EKSClient] {
	return &procedurehelpers.ListDeleteProcedure[string, EKSClient]{
		ItemType:    "eks-cluster",
		Description: "EKS cluster",
		Client:      client,
		Region:      region,
		DryRun:      opts.DryRun,
		Wait:        opts.Wait,
		WaitConfig:  opts.WaitConfig,
		ListFunc:    clusterListFunc,
		NameFunc: func(name string) string {
			return name
		},
		SkipFunc:       clusterSkipFunc,
		DependentsFunc: nodegroupsFunc(opts),
		DeleteFunc:     clusterDeleteFunc,
		WaitFunc:       clusterWaitFunc,
	}
}
