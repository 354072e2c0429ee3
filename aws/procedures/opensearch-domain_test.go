package procedures

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	"github.com/aws/aws-sdk-go-v2/service/opensearch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openSearchTestClient struct {
	log       *callLog
	Domains   []types.DomainInfo
	DeleteErr error

	// Deleting Domains that are already being deleted
	Deleting map[string]bool
}

func (c *openSearchTestClient) ListDomainNames(ctx context.Context, params *opensearch.ListDomainNamesInput, optFns ...func(*opensearch.Options)) (*opensearch.ListDomainNamesOutput, error) {
	c.log.add("ListDomainNames")

	return &opensearch.ListDomainNamesOutput{
		DomainNames: c.Domains,
	}, nil
}

func (c *openSearchTestClient) DescribeDomain(ctx context.Context, params *opensearch.DescribeDomainInput, optFns ...func(*opensearch.Options)) (*opensearch.DescribeDomainOutput, error) {
	c.log.add("DescribeDomain %v", aws.ToString(params.DomainName))

	return &opensearch.DescribeDomainOutput{
		DomainStatus: &types.DomainStatus{
			DomainName: params.DomainName,
			Deleted:    aws.Bool(c.Deleting[aws.ToString(params.DomainName)]),
		},
	}, nil
}

func (c *openSearchTestClient) DeleteDomain(ctx context.Context, params *opensearch.DeleteDomainInput, optFns ...func(*opensearch.Options)) (*opensearch.DeleteDomainOutput, error) {
	c.log.add("DeleteDomain %v", aws.ToString(params.DomainName))

	return &opensearch.DeleteDomainOutput{}, c.DeleteErr
}

func TestOpenSearchDomainProcedure(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	client := &openSearchTestClient{
		log: calls,
		Domains: []types.DomainInfo{
			{DomainName: aws.String("logs")},
			{DomainName: aws.String("search")},
		},
	}

	report, err := NewOpenSearchDomainProcedure(client, "eu-west-2", testOptions()).Teardown(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{
		"ListDomainNames",
		"DescribeDomain logs",
		"DeleteDomain logs",
		"DescribeDomain search",
		"DeleteDomain search",
	}, calls.calls)
	assert.Equal(t, []string{"logs", "search"}, report.Deleted)
}

func TestOpenSearchDomainProcedureAlreadyGone(t *testing.T) {
	t.Parallel()

	client := &openSearchTestClient{
		log:       &callLog{},
		Domains:   []types.DomainInfo{{DomainName: aws.String("logs")}},
		DeleteErr: &types.ResourceNotFoundException{Message: aws.String("Domain not found: logs")},
	}

	report, err := NewOpenSearchDomainProcedure(client, "eu-west-2", testOptions()).Teardown(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"logs"}, report.Deleted)
}

func TestOpenSearchDomainProcedureDeleting(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	client := &openSearchTestClient{
		log: calls,
		Domains: []types.DomainInfo{
			{DomainName: aws.String("logs")},
			{DomainName: aws.String("search")},
		},
		Deleting: map[string]bool{"logs": true},
	}

	report, err := NewOpenSearchDomainProcedure(client, "eu-west-2", testOptions()).Teardown(context.Background())

	require.NoError(t, err)
	assert.Equal(t, -1, calls.index("DeleteDomain logs"))
	assert.Equal(t, []string{"logs"}, report.Skipped)
	assert.Equal(t, []string{"search"}, report.Deleted)
}
