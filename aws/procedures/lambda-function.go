package procedures

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

type LambdaClient interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
}

func functionListFunc(ctx context.Context, client LambdaClient) ([]types.FunctionConfiguration, error) {
	functions := make([]types.FunctionConfiguration, 0)
	paginator := lambda.NewListFunctionsPaginator(client, &lambda.ListFunctionsInput{})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		functions = append(functions, out.Functions...)
	}

	return functions, nil
}

func functionDeleteFunc(ctx context.Context, client LambdaClient, function types.FunctionConfiguration) error {
	_, err := client.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: function.FunctionName,
	})

	return err
}

// Lambda has no waiter for deletion so we poll GetFunction until it says the
// function doesn't exist
func functionWaitFunc(ctx context.Context, client LambdaClient, function types.FunctionConfiguration, cfg procedurehelpers.WaitConfig) error {
	return procedurehelpers.PollUntilGone(ctx, cfg, func(ctx context.Context) (bool, error) {
		_, err := client.GetFunction(ctx, &lambda.GetFunctionInput{
			FunctionName: function.FunctionName,
		})

		if err == nil {
			return false, nil
		}

		if procedurehelpers.IsNotFound(err) {
			return true, nil
		}

		return false, err
	})
}

// NewLambdaFunctionProcedure Deletes every Lambda function. Deletion is
// always confirmed by polling, regardless of opts.Wait
func NewLambdaFunctionProcedure(client LambdaClient, region string, opts Options) *procedurehelpers.ListDeleteProcedure[types.FunctionConfiguration, LambdaClient] {
	return &procedurehelpers.ListDeleteProcedure[types.FunctionConfiguration, LambdaClient]{
		ItemType:    "lambda-function",
		Description: "Lambda function",
		Client:      client,
		Region:      region,
		DryRun:      opts.DryRun,
		Wait:        true,
		WaitConfig:  opts.WaitConfig,
		ListFunc:    functionListFunc,
		NameFunc: func(function types.FunctionConfiguration) string {
			return aws.ToString(function.FunctionName)
		},
		DeleteFunc: functionDeleteFunc,
		WaitFunc:   functionWaitFunc,
	}
}
