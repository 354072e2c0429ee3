package procedures

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	kinesistypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	opensearchtypes "github.com/aws/aws-sdk-go-v2/service/opensearch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testProcedure struct {
	itemType string
	log      *callLog
	err      error
}

func (p *testProcedure) Type() string {
	return p.itemType
}

func (p *testProcedure) Teardown(ctx context.Context) (*procedurehelpers.Report, error) {
	p.log.add("%v", p.itemType)

	report := procedurehelpers.NewReport(p.itemType, "eu-west-2")
	if p.err == nil {
		report.Deleted = []string{p.itemType + "-1"}
	}

	return report, p.err
}

func testProcedures(calls *callLog) []procedurehelpers.Procedure {
	all := make([]procedurehelpers.Procedure, 0, len(DefaultOrder))

	for _, itemType := range DefaultOrder {
		all = append(all, &testProcedure{itemType: itemType, log: calls})
	}

	return all
}

func TestValidateTypes(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateTypes(DefaultOrder))
	require.NoError(t, ValidateTypes(DefaultWaits))
	require.NoError(t, ValidateTypes(nil))

	err := ValidateTypes([]string{"ec2-instance", "s3-bucket"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3-bucket")

	err = ValidateTypes([]string{"ec2-instance", "lambda-function", "ec2-instance"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestValidateWaits(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateWaits(DefaultWaits))
	require.NoError(t, ValidateWaits(WaitableTypes))
	require.NoError(t, ValidateWaits(nil))

	for _, name := range []string{
		"autoscaling-group",
		"lambda-function",
		"ec2-vpc-peering-connection",
		"opensearch-domain",
		"kinesis-stream",
		"firehose-delivery-stream",
	} {
		err := ValidateWaits([]string{"ecs-cluster", name})
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), name)
		assert.Contains(t, err.Error(), "cannot wait")
	}

	err := ValidateWaits([]string{"s3-bucket"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource type")
}

// Every waitable type reads the wait option, so turning it on changes what
// gets called
func TestWaitableTypesHonourWait(t *testing.T) {
	t.Parallel()

	for _, itemType := range WaitableTypes {
		assert.True(t, Config{Waits: WaitableTypes}.options(itemType).Wait, itemType)
		assert.False(t, Config{}.options(itemType).Wait, itemType)
	}
}

func TestNewDriver(t *testing.T) {
	t.Parallel()

	calls := &callLog{}

	t.Run("default order", func(t *testing.T) {
		d, err := NewDriver("eu-west-2", DefaultOrder, testProcedures(calls))
		require.NoError(t, err)
		assert.Len(t, d.Procedures, len(DefaultOrder))
	})

	t.Run("empty order", func(t *testing.T) {
		_, err := NewDriver("eu-west-2", nil, testProcedures(calls))
		require.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewDriver("eu-west-2", []string{"ec2-instance", "rds-db-instance"}, testProcedures(calls))
		require.Error(t, err)
	})

	t.Run("duplicate type", func(t *testing.T) {
		_, err := NewDriver("eu-west-2", []string{"eks-cluster", "eks-cluster"}, testProcedures(calls))
		require.Error(t, err)
	})

	t.Run("missing procedure", func(t *testing.T) {
		_, err := NewDriver("eu-west-2", []string{"eks-cluster"}, testProcedures(calls)[:1])
		require.Error(t, err)
	})

	assert.Empty(t, calls.calls)
}

func TestDriverRun(t *testing.T) {
	t.Parallel()

	t.Run("runs in the default order", func(t *testing.T) {
		calls := &callLog{}

		d, err := NewDriver("eu-west-2", DefaultOrder, testProcedures(calls))
		require.NoError(t, err)

		reports, err := d.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, DefaultOrder, calls.calls)
		assert.Len(t, reports, len(DefaultOrder))
	})

	t.Run("runs in a custom order", func(t *testing.T) {
		calls := &callLog{}
		order := []string{"cloudformation-stack", "lambda-function", "autoscaling-group"}

		d, err := NewDriver("eu-west-2", order, testProcedures(calls))
		require.NoError(t, err)

		_, err = d.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, order, calls.calls)
	})

	t.Run("an error aborts the rest", func(t *testing.T) {
		calls := &callLog{}
		boom := errors.New("error listing ec2-instance in region eu-west-2: UnauthorizedOperation")

		procs := testProcedures(calls)
		procs[2].(*testProcedure).err = boom

		d, err := NewDriver("eu-west-2", DefaultOrder, procs)
		require.NoError(t, err)

		reports, err := d.Run(context.Background())

		require.ErrorIs(t, err, boom)
		assert.Equal(t, DefaultOrder[:3], calls.calls)
		assert.Len(t, reports, 3)
	})

	t.Run("cancelled", func(t *testing.T) {
		calls := &callLog{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		d, err := NewDriver("eu-west-2", DefaultOrder, testProcedures(calls))
		require.NoError(t, err)

		_, err = d.Run(ctx)

		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, calls.calls)
	})
}

func TestDriverRunEmptyRegion(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	opts := Config{
		WaitConfig: testWaitConfig(),
		Waits:      WaitableTypes,
	}

	clients := Clients{
		AutoScaling:    &autoScalingTestClient{log: calls},
		ECS:            &ecsTestClient{log: calls},
		EC2:            &ec2TestClient{log: calls},
		Lambda:         &lambdaTestClient{log: calls},
		OpenSearch:     &openSearchTestClient{log: calls},
		Kinesis:        &kinesisTestClient{log: calls},
		Firehose:       &firehoseTestClient{log: calls},
		EKS:            &eksTestClient{log: calls},
		CloudFormation: &cloudFormationTestClient{log: calls},
	}

	d, err := NewDriver("eu-west-2", DefaultOrder, All(clients, "eu-west-2", opts))
	require.NoError(t, err)

	// Running twice against nothing is a no-op both times
	for range 2 {
		reports, err := d.Run(context.Background())

		require.NoError(t, err)
		require.Len(t, reports, len(DefaultOrder))

		for _, r := range reports {
			assert.Empty(t, r.Deleted, r.Type)
			assert.False(t, r.Failed(), r.Type)
		}
	}
}

func TestDriverRunWhileDeleting(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	clients := Clients{
		AutoScaling: &autoScalingTestClient{log: calls},
		ECS:         &ecsTestClient{log: calls},
		EC2:         &ec2TestClient{log: calls},
		Lambda:      &lambdaTestClient{log: calls},
		OpenSearch: &openSearchTestClient{
			log:      calls,
			Domains:  []opensearchtypes.DomainInfo{{DomainName: aws.String("logs")}},
			Deleting: map[string]bool{"logs": true},
		},
		Kinesis: &kinesisTestClient{
			log: calls,
			Streams: []kinesistypes.StreamSummary{
				{StreamName: aws.String("events"), StreamStatus: kinesistypes.StreamStatusDeleting},
			},
		},
		Firehose: &firehoseTestClient{
			log:      calls,
			Streams:  []string{"events-to-s3"},
			PageSize: 10,
			Deleting: map[string]bool{"events-to-s3": true},
		},
		EKS: &eksTestClient{
			log:        calls,
			Clusters:   []string{"prod"},
			Nodegroups: map[string][]string{"prod": {"ng-a"}},
			Deleting:   map[string]bool{"prod": true},
		},
		CloudFormation: &cloudFormationTestClient{log: calls},
	}

	d, err := NewDriver("eu-west-2", DefaultOrder, All(clients, "eu-west-2", Config{
		WaitConfig: testWaitConfig(),
		Waits:      DefaultWaits,
	}))
	require.NoError(t, err)

	// A second run while the first one's deletions are still going is quiet
	reports, err := d.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, len(DefaultOrder))
	assert.NotEqual(t, -1, calls.index("ListStacks 4"))

	for _, r := range reports {
		assert.Empty(t, r.Deleted, r.Type)
	}

	assert.Equal(t, 0, calls.count("DeleteDomain logs"))
	assert.Equal(t, 0, calls.count("DeleteStream events enforceConsumerDeletion=true"))
	assert.Equal(t, 0, calls.count("DeleteDeliveryStream events-to-s3"))
	assert.Equal(t, 0, calls.count("DeleteCluster prod"))
}
