package procedures

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	log "github.com/sirupsen/logrus"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

type ECSClient interface {
	ListClusters(ctx context.Context, params *ecs.ListClustersInput, optFns ...func(*ecs.Options)) (*ecs.ListClustersOutput, error)
	DescribeClusters(ctx context.Context, params *ecs.DescribeClustersInput, optFns ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error)
	DeleteCluster(ctx context.Context, params *ecs.DeleteClusterInput, optFns ...func(*ecs.Options)) (*ecs.DeleteClusterOutput, error)
	ListServices(ctx context.Context, params *ecs.ListServicesInput, optFns ...func(*ecs.Options)) (*ecs.ListServicesOutput, error)
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
	DeleteService(ctx context.Context, params *ecs.DeleteServiceInput, optFns ...func(*ecs.Options)) (*ecs.DeleteServiceOutput, error)
	ListTasks(ctx context.Context, params *ecs.ListTasksInput, optFns ...func(*ecs.Options)) (*ecs.ListTasksOutput, error)
	DescribeTasks(ctx context.Context, params *ecs.DescribeTasksInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error)
	StopTask(ctx context.Context, params *ecs.StopTaskInput, optFns ...func(*ecs.Options)) (*ecs.StopTaskOutput, error)
}

const ecsStopReason = "Stopped by aws-teardown"

func ecsClusterListFunc(ctx context.Context, client ECSClient) ([]string, error) {
	arns := make([]string, 0)
	paginator := ecs.NewListClustersPaginator(client, &ecs.ListClustersInput{})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		arns = append(arns, out.ClusterArns...)
	}

	return arns, nil
}

func ecsServiceList(ctx context.Context, client ECSClient, clusterARN string) ([]string, error) {
	arns := make([]string, 0)
	paginator := ecs.NewListServicesPaginator(client, &ecs.ListServicesInput{
		Cluster: aws.String(clusterARN),
	})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		arns = append(arns, out.ServiceArns...)
	}

	return arns, nil
}

func ecsTaskList(ctx context.Context, client ECSClient, clusterARN string) ([]string, error) {
	arns := make([]string, 0)
	paginator := ecs.NewListTasksPaginator(client, &ecs.ListTasksInput{
		Cluster: aws.String(clusterARN),
	})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		arns = append(arns, out.TaskArns...)
	}

	return arns, nil
}

func ecsServiceWait(ctx context.Context, client ECSClient, clusterARN, serviceARN string, cfg procedurehelpers.WaitConfig) error {
	waiter := ecs.NewServicesInactiveWaiter(client, func(o *ecs.ServicesInactiveWaiterOptions) {
		o.MinDelay = cfg.InitialInterval
		o.MaxDelay = cfg.MaxInterval
		o.Retryable = procedurehelpers.LimitAttempts(cfg.MaxAttempts, o.Retryable)
	})

	return procedurehelpers.AwaitWaiter(ctx, cfg, func(ctx context.Context, maxWaitDur time.Duration) error {
		return waiter.Wait(ctx, &ecs.DescribeServicesInput{
			Cluster:  aws.String(clusterARN),
			Services: []string{serviceARN},
		}, maxWaitDur)
	})
}

func ecsTaskWait(ctx context.Context, client ECSClient, clusterARN, taskARN string, cfg procedurehelpers.WaitConfig) error {
	waiter := ecs.NewTasksStoppedWaiter(client, func(o *ecs.TasksStoppedWaiterOptions) {
		o.MinDelay = cfg.InitialInterval
		o.MaxDelay = cfg.MaxInterval
		o.Retryable = procedurehelpers.LimitAttempts(cfg.MaxAttempts, o.Retryable)
	})

	return procedurehelpers.AwaitWaiter(ctx, cfg, func(ctx context.Context, maxWaitDur time.Duration) error {
		return waiter.Wait(ctx, &ecs.DescribeTasksInput{
			Cluster: aws.String(clusterARN),
			Tasks:   []string{taskARN},
		}, maxWaitDur)
	})
}

// ecsClusterEmpty Reports whether the cluster has no services and no tasks
// that are meant to be running
func ecsClusterEmpty(ctx context.Context, client ECSClient, clusterARN string) (bool, error) {
	services, err := client.ListServices(ctx, &ecs.ListServicesInput{
		Cluster:    aws.String(clusterARN),
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}

	if len(services.ServiceArns) > 0 {
		return false, nil
	}

	tasks, err := client.ListTasks(ctx, &ecs.ListTasksInput{
		Cluster:       aws.String(clusterARN),
		DesiredStatus: types.DesiredStatusRunning,
		MaxResults:    aws.Int32(1),
	})
	if err != nil {
		return false, err
	}

	return len(tasks.TaskArns) == 0, nil
}

type ecsDependents struct {
	opts Options
}

// drainServices Scales each service down to zero then force deletes it
func (d ecsDependents) drainServices(ctx context.Context, client ECSClient, clusterARN string, report *procedurehelpers.Report) error {
	services, err := ecsServiceList(ctx, client, clusterARN)
	if err != nil {
		return err
	}

	for _, serviceARN := range services {
		name := procedurehelpers.ResourceName(serviceARN)
		lf := log.Fields{
			"type":    "ecs-service",
			"region":  report.Region,
			"cluster": procedurehelpers.ResourceName(clusterARN),
			"name":    name,
		}

		if d.opts.DryRun {
			log.WithContext(ctx).WithFields(lf).Info("Would delete ECS service")
			report.Planned = append(report.Planned, name)
			continue
		}

		log.WithContext(ctx).WithFields(lf).Info("Deleting ECS service")

		_, err = client.UpdateService(ctx, &ecs.UpdateServiceInput{
			Cluster:      aws.String(clusterARN),
			Service:      aws.String(serviceARN),
			DesiredCount: aws.Int32(0),
		})
		if err != nil && !procedurehelpers.IsNotFound(err) {
			return fmt.Errorf("error scaling down service %v: %w", name, err)
		}

		_, err = client.DeleteService(ctx, &ecs.DeleteServiceInput{
			Cluster: aws.String(clusterARN),
			Service: aws.String(serviceARN),
			Force:   aws.Bool(true),
		})
		if err != nil && !procedurehelpers.IsNotFound(err) {
			return fmt.Errorf("error deleting service %v: %w", name, err)
		}

		if d.opts.Wait {
			err = ecsServiceWait(ctx, client, clusterARN, serviceARN, d.opts.WaitConfig)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}

				log.WithContext(ctx).WithFields(lf).WithError(err).Error("Could not confirm deletion of ECS service")
				report.RecordWaitFailure(name, err)

				continue
			}

			log.WithContext(ctx).WithFields(lf).Info("Deleted ECS service")
		}

		report.Deleted = append(report.Deleted, name)
	}

	return nil
}

func (d ecsDependents) stopTasks(ctx context.Context, client ECSClient, clusterARN string, report *procedurehelpers.Report) error {
	tasks, err := ecsTaskList(ctx, client, clusterARN)
	if err != nil {
		return err
	}

	for _, taskARN := range tasks {
		name := procedurehelpers.ResourceName(taskARN)
		lf := log.Fields{
			"type":    "ecs-task",
			"region":  report.Region,
			"cluster": procedurehelpers.ResourceName(clusterARN),
			"name":    name,
		}

		if d.opts.DryRun {
			log.WithContext(ctx).WithFields(lf).Info("Would stop ECS task")
			report.Planned = append(report.Planned, name)
			continue
		}

		log.WithContext(ctx).WithFields(lf).Info("Stopping ECS task")

		_, err = client.StopTask(ctx, &ecs.StopTaskInput{
			Cluster: aws.String(clusterARN),
			Task:    aws.String(taskARN),
			Reason:  aws.String(ecsStopReason),
		})
		if err != nil && !procedurehelpers.IsNotFound(err) {
			return fmt.Errorf("error stopping task %v: %w", name, err)
		}

		if d.opts.Wait {
			err = ecsTaskWait(ctx, client, clusterARN, taskARN, d.opts.WaitConfig)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}

				log.WithContext(ctx).WithFields(lf).WithError(err).Error("Could not confirm ECS task stopped")
				report.RecordWaitFailure(name, err)

				continue
			}

			log.WithContext(ctx).WithFields(lf).Info("Stopped ECS task")
		}

		report.Deleted = append(report.Deleted, name)
	}

	return nil
}

// Teardown Removes services and tasks, then makes sure the cluster really is
// empty since DeleteCluster fails otherwise
func (d ecsDependents) Teardown(ctx context.Context, client ECSClient, clusterARN string, report *procedurehelpers.Report) (string, error) {
	err := d.drainServices(ctx, client, clusterARN, report)
	if err != nil {
		return "", err
	}

	err = d.stopTasks(ctx, client, clusterARN, report)
	if err != nil {
		return "", err
	}

	if d.opts.DryRun {
		return "", nil
	}

	err = procedurehelpers.PollUntilGone(ctx, d.opts.WaitConfig, func(ctx context.Context) (bool, error) {
		return ecsClusterEmpty(ctx, client, clusterARN)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		return fmt.Sprintf("services or tasks still present: %v", err), nil
	}

	return "", nil
}

func ecsClusterDeleteFunc(ctx context.Context, client ECSClient, clusterARN string) error {
	_, err := client.DeleteCluster(ctx, &ecs.DeleteClusterInput{
		Cluster: aws.String(clusterARN),
	})

	return err
}

// ECS has no waiter for cluster deletion. Deleted clusters are either
// INACTIVE for a while or reported as MISSING
func ecsClusterWaitFunc(ctx context.Context, client ECSClient, clusterARN string, cfg procedurehelpers.WaitConfig) error {
	return procedurehelpers.PollUntilGone(ctx, cfg, func(ctx context.Context) (bool, error) {
		out, err := client.DescribeClusters(ctx, &ecs.DescribeClustersInput{
			Clusters: []string{clusterARN},
		})
		if err != nil {
			if procedurehelpers.IsNotFound(err) {
				return true, nil
			}

			return false, err
		}

		for _, failure := range out.Failures {
			if aws.ToString(failure.Reason) == "MISSING" {
				return true, nil
			}
		}

		for _, cluster := range out.Clusters {
			if aws.ToString(cluster.Status) != "INACTIVE" {
				return false, nil
			}
		}

		return true, nil
	})
}

// NewECSClusterProcedure Deletes every ECS cluster after removing its
// services and stopping its tasks
func NewECSClusterProcedure(client ECSClient, region string, opts Options) *procedurehelpers.ListDeleteProcedure[string, ECSClient] {
	return &procedurehelpers.ListDeleteProcedure[string, ECSClient]{
		ItemType:       "ecs-cluster",
		Description:    "ECS cluster",
		Client:         client,
		Region:         region,
		DryRun:         opts.DryRun,
		Wait:           opts.Wait,
		WaitConfig:     opts.WaitConfig,
		ListFunc:       ecsClusterListFunc,
		NameFunc:       procedurehelpers.ResourceName,
		DependentsFunc: ecsDependents{opts: opts}.Teardown,
		DeleteFunc:     ecsClusterDeleteFunc,
		WaitFunc:       ecsClusterWaitFunc,
	}
}
