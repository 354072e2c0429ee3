package procedures

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

type FirehoseClient interface {
	ListDeliveryStreams(ctx context.Context, params *firehose.ListDeliveryStreamsInput, optFns ...func(*firehose.Options)) (*firehose.ListDeliveryStreamsOutput, error)
	DescribeDeliveryStream(ctx context.Context, params *firehose.DescribeDeliveryStreamInput, optFns ...func(*firehose.Options)) (*firehose.DescribeDeliveryStreamOutput, error)
	DeleteDeliveryStream(ctx context.Context, params *firehose.DeleteDeliveryStreamInput, optFns ...func(*firehose.Options)) (*firehose.DeleteDeliveryStreamOutput, error)
}

// Firehose has no paginator, each page starts after the last name of the
// previous one
func deliveryStreamListFunc(ctx context.Context, client FirehoseClient) ([]string, error) {
	names := make([]string, 0)
	input := &firehose.ListDeliveryStreamsInput{}

	for {
		out, err := client.ListDeliveryStreams(ctx, input)
		if err != nil {
			return nil, err
		}

		names = append(names, out.DeliveryStreamNames...)

		if !aws.ToBool(out.HasMoreDeliveryStreams) || len(out.DeliveryStreamNames) == 0 {
			return names, nil
		}

		input = &firehose.ListDeliveryStreamsInput{
			ExclusiveStartDeliveryStreamName: aws.String(out.DeliveryStreamNames[len(out.DeliveryStreamNames)-1]),
		}
	}
}

// The list only has names, the status needs a describe
func deliveryStreamSkipFunc(ctx context.Context, client FirehoseClient, name string) (string, error) {
	out, err := client.DescribeDeliveryStream(ctx, &firehose.DescribeDeliveryStreamInput{
		DeliveryStreamName: aws.String(name),
	})
	if err != nil {
		if procedurehelpers.IsNotFound(err) {
			return "delivery stream no longer exists", nil
		}

		return "", err
	}

	if out.DeliveryStreamDescription != nil && out.DeliveryStreamDescription.DeliveryStreamStatus == types.DeliveryStreamStatusDeleting {
		return "delivery stream is already being deleted", nil
	}

	return "", nil
}

func deliveryStreamDeleteFunc(ctx context.Context, client FirehoseClient, name string) error {
	_, err := client.DeleteDeliveryStream(ctx, &firehose.DeleteDeliveryStreamInput{
		DeliveryStreamName: aws.String(name),
	})

	return err
}

func NewFirehoseDeliveryStreamProcedure(client FirehoseClient, region string, opts Options) *procedurehelpers.ListDeleteProcedure[string, FirehoseClient] {
	return &procedurehelpers.ListDeleteProcedure[string, FirehoseClient]{
		ItemType:    "firehose-delivery-stream",
		Description: "Firehose delivery stream",
		Client:      client,
		Region:      region,
		DryRun:      opts.DryRun,
		ListFunc:    deliveryStreamListFunc,
		NameFunc: func(name string) string {
			return name
		},
		SkipFunc:   deliveryStreamSkipFunc,
		DeleteFunc: deliveryStreamDeleteFunc,
	}
}
