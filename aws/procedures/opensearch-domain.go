package procedures

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	"github.com/aws/aws-sdk-go-v2/service/opensearch/types"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

type OpenSearchClient interface {
	ListDomainNames(ctx context.Context, params *opensearch.ListDomainNamesInput, optFns ...func(*opensearch.Options)) (*opensearch.ListDomainNamesOutput, error)
	DescribeDomain(ctx context.Context, params *opensearch.DescribeDomainInput, optFns ...func(*opensearch.Options)) (*opensearch.DescribeDomainOutput, error)
	DeleteDomain(ctx context.Context, params *opensearch.DeleteDomainInput, optFns ...func(*opensearch.Options)) (*opensearch.DeleteDomainOutput, error)
}

// ListDomainNames isn't paginated
func domainListFunc(ctx context.Context, client OpenSearchClient) ([]types.DomainInfo, error) {
	out, err := client.ListDomainNames(ctx, &opensearch.ListDomainNamesInput{})
	if err != nil {
		return nil, err
	}

	return out.DomainNames, nil
}

// Domains stay listed with Deleted set until the deletion finishes
func domainSkipFunc(ctx context.Context, client OpenSearchClient, domain types.DomainInfo) (string, error) {
	out, err := client.DescribeDomain(ctx, &opensearch.DescribeDomainInput{
		DomainName: domain.DomainName,
	})
	if err != nil {
		if procedurehelpers.IsNotFound(err) {
			return "domain no longer exists", nil
		}

		return "", err
	}

	if out.DomainStatus != nil && aws.ToBool(out.DomainStatus.Deleted) {
		return "domain is already being deleted", nil
	}

	return "", nil
}

func domainDeleteFunc(ctx context.Context, client OpenSearchClient, domain types.DomainInfo) error {
	_, err := client.DeleteDomain(ctx, &opensearch.DeleteDomainInput{
		DomainName: domain.DomainName,
	})

	return err
}

func NewOpenSearchDomainProcedure(client OpenSearchClient, region string, opts Options) *procedurehelpers.ListDeleteProcedure[types.DomainInfo, OpenSearchClient] {
	return &procedurehelpers.ListDeleteProcedure[types.DomainInfo, OpenSearchClient]{
		ItemType:    "opensearch-domain",
		Description: "OpenSearch domain",
		Client:      client,
		Region:      region,
		DryRun:      opts.DryRun,
		ListFunc:    domainListFunc,
		NameFunc: func(domain types.DomainInfo) string {
			return aws.ToString(domain.DomainName)
		},
		SkipFunc:   domainSkipFunc,
		DeleteFunc: domainDeleteFunc,
	}
}
