package procedures

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

type KinesisClient interface {
	ListStreams(ctx context.Context, params *kinesis.ListStreamsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListStreamsOutput, error)
	DeleteStream(ctx context.Context, params *kinesis.DeleteStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.DeleteStreamOutput, error)
}

func streamListFunc(ctx context.Context, client KinesisClient) ([]types.StreamSummary, error) {
	streams := make([]types.StreamSummary, 0)
	paginator := kinesis.NewListStreamsPaginator(client, &kinesis.ListStreamsInput{})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		streams = append(streams, out.StreamSummaries...)
	}

	return streams, nil
}

// A second delete of a stream that is going away fails with
// ResourceInUseException
func streamSkipFunc(ctx context.Context, client KinesisClient, stream types.StreamSummary) (string, error) {
	if stream.StreamStatus == types.StreamStatusDeleting {
		return "stream is already being deleted", nil
	}

	return "", nil
}

// Registered consumers would otherwise make the delete fail
func streamDeleteFunc(ctx context.Context, client KinesisClient, stream types.StreamSummary) error {
	_, err := client.DeleteStream(ctx, &kinesis.DeleteStreamInput{
		StreamName:              stream.StreamName,
		EnforceConsumerDeletion: aws.Bool(true),
	})

	return err
}

func NewKinesisStreamProcedure(client KinesisClient, region string, opts Options) *procedurehelpers.ListDeleteProcedure[types.StreamSummary, KinesisClient] {
	return &procedurehelpers.ListDeleteProcedure[types.StreamSummary, KinesisClient]{
		ItemType:    "kinesis-stream",
		Description: "Kinesis stream",
		Client:      client,
		Region:      region,
		DryRun:      opts.DryRun,
		ListFunc:    streamListFunc,
		NameFunc: func(stream types.StreamSummary) string {
			return aws.ToString(stream.StreamName)
		},
		SkipFunc:   streamSkipFunc,
		DeleteFunc: streamDeleteFunc,
	}
}
