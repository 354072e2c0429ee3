package procedurehelpers

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResource struct {
	Name      string
	Protected bool
	Blocked   bool
}

type testClient struct {
	Resources  []testResource
	ListErr    error
	DeleteErrs map[string]error
	WaitErrs   map[string]error

	Deleted []string
	Waited  []string
}

func newTestProcedure(client *testClient) *ListDeleteProcedure[testResource, *testClient] {
	return &ListDeleteProcedure[testResource, *testClient]{
		ItemType:    "test-thing",
		Description: "test thing",
		Client:      client,
		Region:      "eu-west-2",
		WaitConfig:  testWaitConfig(),
		ListFunc: func(ctx context.Context, client *testClient) ([]testResource, error) {
			return client.Resources, client.ListErr
		},
		NameFunc: func(resource testResource) string {
			return resource.Name
		},
		SkipFunc: func(ctx context.Context, client *testClient, resource testResource) (string, error) {
			if resource.Protected {
				return "protected", nil
			}
			return "", nil
		},
		DependentsFunc: func(ctx context.Context, client *testClient, resource testResource, report *Report) (string, error) {
			if resource.Blocked {
				return "dependents still present", nil
			}
			return "", nil
		},
		DeleteFunc: func(ctx context.Context, client *testClient, resource testResource) error {
			if err := client.DeleteErrs[resource.Name]; err != nil {
				return err
			}
			client.Deleted = append(client.Deleted, resource.Name)
			return nil
		},
		WaitFunc: func(ctx context.Context, client *testClient, resource testResource, cfg WaitConfig) error {
			client.Waited = append(client.Waited, resource.Name)
			return client.WaitErrs[resource.Name]
		},
	}
}

func TestListDeleteProcedureValidate(t *testing.T) {
	t.Parallel()

	p := newTestProcedure(&testClient{})
	require.NoError(t, p.Validate())

	p.Wait = true
	p.WaitFunc = nil
	require.Error(t, p.Validate())

	p = newTestProcedure(&testClient{})
	p.ListFunc = nil
	require.Error(t, p.Validate())

	_, err := p.Teardown(context.Background())
	require.Error(t, err)
}

func TestListDeleteProcedureTeardown(t *testing.T) {
	t.Parallel()

	t.Run("deletes everything in order", func(t *testing.T) {
		client := &testClient{
			Resources: []testResource{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		}

		report, err := newTestProcedure(client).Teardown(context.Background())

		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, client.Deleted)
		assert.Equal(t, []string{"a", "b", "c"}, report.Deleted)
		assert.Empty(t, client.Waited)
		assert.Equal(t, "test-thing", report.Type)
		assert.Equal(t, "eu-west-2", report.Region)
	})

	t.Run("nothing to delete", func(t *testing.T) {
		client := &testClient{}

		report, err := newTestProcedure(client).Teardown(context.Background())

		require.NoError(t, err)
		assert.Empty(t, client.Deleted)
		assert.Empty(t, report.Deleted)
	})

	t.Run("skips and blocks", func(t *testing.T) {
		client := &testClient{
			Resources: []testResource{{Name: "keep", Protected: true}, {Name: "stuck", Blocked: true}, {Name: "go"}},
		}

		report, err := newTestProcedure(client).Teardown(context.Background())

		require.NoError(t, err)
		assert.Equal(t, []string{"go"}, client.Deleted)
		assert.Equal(t, []string{"keep"}, report.Skipped)
		assert.Equal(t, []string{"stuck"}, report.Unconfirmed)
	})

	t.Run("waits after each delete", func(t *testing.T) {
		client := &testClient{
			Resources: []testResource{{Name: "a"}, {Name: "b"}, {Name: "c"}},
			WaitErrs: map[string]error{
				"b": ErrDeletionTimedOut,
				"c": errors.New("waiter state transitioned to Failure"),
			},
		}

		p := newTestProcedure(client)
		p.Wait = true

		report, err := p.Teardown(context.Background())

		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, client.Waited)
		assert.Equal(t, []string{"a"}, report.Deleted)
		assert.Equal(t, []string{"b"}, report.TimedOut)
		assert.Equal(t, []string{"c"}, report.Unconfirmed)
	})

	t.Run("dry run", func(t *testing.T) {
		client := &testClient{
			Resources: []testResource{{Name: "a"}, {Name: "keep", Protected: true}},
		}

		p := newTestProcedure(client)
		p.DryRun = true

		report, err := p.Teardown(context.Background())

		require.NoError(t, err)
		assert.Empty(t, client.Deleted)
		assert.Equal(t, []string{"a"}, report.Planned)
		assert.Equal(t, []string{"keep"}, report.Skipped)
	})

	t.Run("already gone", func(t *testing.T) {
		client := &testClient{
			Resources: []testResource{{Name: "a"}, {Name: "b"}},
			DeleteErrs: map[string]error{
				"a": &smithy.GenericAPIError{Code: "ResourceNotFoundException"},
			},
		}

		p := newTestProcedure(client)
		p.Wait = true

		report, err := p.Teardown(context.Background())

		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, report.Deleted)
		assert.Equal(t, []string{"b"}, client.Waited)
	})

	t.Run("delete errors stop the procedure", func(t *testing.T) {
		boom := &smithy.GenericAPIError{Code: "AccessDeniedException"}
		client := &testClient{
			Resources:  []testResource{{Name: "a"}, {Name: "b"}, {Name: "c"}},
			DeleteErrs: map[string]error{"b": boom},
		}

		report, err := newTestProcedure(client).Teardown(context.Background())

		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "test-thing b")
		assert.Equal(t, []string{"a"}, client.Deleted)
		assert.Equal(t, []string{"a"}, report.Deleted)
	})

	t.Run("list errors", func(t *testing.T) {
		boom := errors.New("throttled")
		client := &testClient{ListErr: boom}

		_, err := newTestProcedure(client).Teardown(context.Background())

		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "eu-west-2")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := &testClient{
			Resources: []testResource{{Name: "a"}},
		}

		_, err := newTestProcedure(client).Teardown(ctx)

		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, client.Deleted)
	})
}
