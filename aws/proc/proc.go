package proc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	stscredsv2 "github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	awsautoscaling "github.com/aws/aws-sdk-go-v2/service/autoscaling"
	awscloudformation "github.com/aws/aws-sdk-go-v2/service/cloudformation"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	awsecs "github.com/aws/aws-sdk-go-v2/service/ecs"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	awsfirehose "github.com/aws/aws-sdk-go-v2/service/firehose"
	awskinesis "github.com/aws/aws-sdk-go-v2/service/kinesis"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	awsopensearch "github.com/aws/aws-sdk-go-v2/service/opensearch"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
	"github.com/overmindtech/teardown/aws/procedures"
	"github.com/overmindtech/teardown/tracing"
)

// This package wires the AWS SDK up to the teardown procedures. It knows how
// to get credentials and build clients, the procedures themselves only see
// the narrow client interfaces

type AwsAuthConfig struct {
	Strategy        string
	AccessKeyID     string
	SecretAccessKey string
	ExternalID      string
	TargetRoleARN   string
	Profile         string
	AutoConfig      bool

	Regions []string
}

// credentialFlags The flags that carry credentials, in the order problems
// with them are reported
var credentialFlags = []string{
	"aws-access-key-id",
	"aws-secret-access-key",
	"aws-external-id",
	"aws-target-role-arn",
	"aws-profile",
}

// strategyFlags The credential flags each access strategy needs. Flags that
// aren't listed must be left blank, except with "defaults" where they are
// ignored
var strategyFlags = map[string][]string{
	"defaults":    nil,
	"access-key":  {"aws-access-key-id", "aws-secret-access-key"},
	"external-id": {"aws-external-id", "aws-target-role-arn"},
	"sso-profile": {"aws-profile"},
}

func (c AwsAuthConfig) flagValues() map[string]string {
	return map[string]string{
		"aws-access-key-id":     c.AccessKeyID,
		"aws-secret-access-key": c.SecretAccessKey,
		"aws-external-id":       c.ExternalID,
		"aws-target-role-arn":   c.TargetRoleARN,
		"aws-profile":           c.Profile,
	}
}

// Validate Checks that the credential flags match the access strategy, so a
// teardown never starts half way through with the wrong account
func (c AwsAuthConfig) Validate() error {
	required, ok := strategyFlags[c.Strategy]
	if !ok {
		return fmt.Errorf("invalid aws-access-strategy %q, use one of defaults, access-key, external-id or sso-profile", c.Strategy)
	}

	if c.AutoConfig || c.Strategy == "defaults" {
		return nil
	}

	values := c.flagValues()
	var errs []error

	for _, flag := range credentialFlags {
		needed := slices.Contains(required, flag)
		set := values[flag] != ""

		switch {
		case needed && !set:
			errs = append(errs, fmt.Errorf("%v cannot be blank when aws-access-strategy is %v", flag, c.Strategy))
		case !needed && set:
			errs = append(errs, fmt.Errorf("%v must be blank when aws-access-strategy is %v", flag, c.Strategy))
		}
	}

	return errors.Join(errs...)
}

// GetAWSConfig Loads the SDK config that the teardown clients for one region
// are built from. Credentials come from the access strategy, with "defaults"
// leaving it all to the SDK's usual chain
func (c AwsAuthConfig) GetAWSConfig(region string) (aws.Config, error) {
	if region == "" {
		return aws.Config{}, errors.New("region cannot be blank")
	}

	err := c.Validate()
	if err != nil {
		return aws.Config{}, err
	}

	ctx := context.Background()

	options := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithAppID("aws-teardown"),
	}

	if c.AutoConfig {
		if c.Strategy != "defaults" {
			log.WithField("aws-access-strategy", c.Strategy).Warn("auto-config ignores aws-access-strategy, credentials come from the environment")
		}

		return config.LoadDefaultConfig(ctx, options...)
	}

	switch c.Strategy {
	case "access-key":
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	case "external-id":
		// The role is assumed with whatever the environment provides
		base, err := config.LoadDefaultConfig(ctx, options...)
		if err != nil {
			return aws.Config{}, fmt.Errorf("could not load credentials to assume %v with: %w", c.TargetRoleARN, err)
		}

		options = append(options, config.WithCredentialsProvider(aws.NewCredentialsCache(
			stscredsv2.NewAssumeRoleProvider(sts.NewFromConfig(base), c.TargetRoleARN, func(aro *stscredsv2.AssumeRoleOptions) {
				aro.ExternalID = aws.String(c.ExternalID)
				aro.RoleSessionName = "aws-teardown"
			}),
		)))
	case "sso-profile":
		options = append(options, config.WithSharedConfigProfile(c.Profile))
	}

	return config.LoadDefaultConfig(ctx, options...)
}

// CreateAWSConfigs Builds one config per region to tear down, in the order the
// regions were given. Blank and repeated regions are dropped so that no region
// is torn down twice
func CreateAWSConfigs(awsAuthConfig AwsAuthConfig) ([]aws.Config, error) {
	regions := make([]string, 0, len(awsAuthConfig.Regions))
	for _, region := range awsAuthConfig.Regions {
		region = strings.TrimSpace(region)
		if region != "" && !slices.Contains(regions, region) {
			regions = append(regions, region)
		}
	}

	if len(regions) == 0 {
		return nil, errors.New("no regions to tear down, set aws-regions")
	}

	configs := make([]aws.Config, 0, len(regions))

	for _, region := range regions {
		cfg, err := awsAuthConfig.GetAWSConfig(region)
		if err != nil {
			return nil, fmt.Errorf("could not configure teardown for %v: %w", region, err)
		}

		// Every AWS call shows up as a span under the procedure that made it
		cfg.HTTPClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}

		configs = append(configs, cfg)
	}

	return configs, nil
}

// isOptInRegionError Regions that haven't been enabled for the account don't
// have the OIDC provider that web identity credentials need, so STS fails in
// a way that doesn't mention the region at all
func isOptInRegionError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.ErrorCode() == "InvalidIdentityToken" && strings.Contains(apiErr.ErrorMessage(), "No OpenIDConnect provider found")
}

func wrapRegionError(err error, region string) error {
	if err == nil {
		return nil
	}

	if isOptInRegionError(err) {
		return fmt.Errorf("region '%v' is not enabled for this account, enable it or remove it from aws-regions: %w", region, err)
	}

	return err
}

// STSClient Used to check who we are before deleting anything
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Number of times to try to get the caller identity before giving up
const callerIdentityTries = 3

// CallerIdentity Returns the identity that the config resolves to. This also
// checks that the credentials work before any procedure starts. Transient
// failures are retried, bad credentials and disabled regions are not
func CallerIdentity(ctx context.Context, client STSClient, region string) (*sts.GetCallerIdentityOutput, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second

	return backoff.Retry(ctx, func() (*sts.GetCallerIdentityOutput, error) {
		callerID, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			var apiErr smithy.APIError
			if errors.As(err, &apiErr) {
				// The API answered, trying again won't help
				return nil, backoff.Permanent(wrapRegionError(err, region))
			}

			return nil, err
		}

		return callerID, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(callerIdentityTries),
	)
}

// NewClients Creates a client for each API that the procedures use
func NewClients(cfg aws.Config) procedures.Clients {
	return procedures.Clients{
		AutoScaling: awsautoscaling.NewFromConfig(cfg, func(o *awsautoscaling.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
		ECS: awsecs.NewFromConfig(cfg, func(o *awsecs.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
		EC2: awsec2.NewFromConfig(cfg, func(o *awsec2.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
		Lambda: awslambda.NewFromConfig(cfg, func(o *awslambda.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
		OpenSearch: awsopensearch.NewFromConfig(cfg, func(o *awsopensearch.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
		Kinesis: awskinesis.NewFromConfig(cfg, func(o *awskinesis.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
		Firehose: awsfirehose.NewFromConfig(cfg, func(o *awsfirehose.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
		EKS: awseks.NewFromConfig(cfg, func(o *awseks.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
		CloudFormation: awscloudformation.NewFromConfig(cfg, func(o *awscloudformation.Options) {
			o.RetryMode = aws.RetryModeAdaptive
			// CloudFormation throttles ListStacks and DescribeStacks heavily
			o.RetryMaxAttempts = 5
		}),
	}
}

// TeardownConfig Everything needed to tear down a region apart from the
// credentials
type TeardownConfig struct {
	// Order The resource types to tear down, in order
	Order []string

	procedures.Config
}

// Validate Checks the config before any API calls are made
func (c TeardownConfig) Validate() error {
	if len(c.Order) == 0 {
		return errors.New("order cannot be empty")
	}

	err := procedures.ValidateTypes(c.Order)
	if err != nil {
		return fmt.Errorf("invalid order: %w", err)
	}

	err = procedures.ValidateWaits(c.Waits)
	if err != nil {
		return fmt.Errorf("invalid wait types: %w", err)
	}

	err = c.WaitConfig.Validate()
	if err != nil {
		return fmt.Errorf("invalid wait config: %w", err)
	}

	return nil
}

// TeardownRegion Runs every procedure in the configured order against a
// single region. The reports from every procedure that ran are returned even
// if one of them fails
func TeardownRegion(ctx context.Context, region string, clients procedures.Clients, tc TeardownConfig) ([]*procedurehelpers.Report, error) {
	ctx, span := tracing.Tracer().Start(ctx, "TeardownRegion", trace.WithAttributes(
		attribute.String("ovm.teardown.region", region),
		attribute.StringSlice("ovm.teardown.order", tc.Order),
		attribute.Bool("ovm.teardown.dryRun", tc.DryRun),
	))
	defer span.End()

	driver, err := procedures.NewDriver(region, tc.Order, procedures.All(clients, region, tc.Config))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reports, err := driver.Run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return reports, fmt.Errorf("teardown of region %v failed: %w", region, err)
	}

	return reports, nil
}

// Teardown Tears down each region in turn using real AWS clients, logging
// the identity that is being used first. Regions are never processed in
// parallel
func Teardown(ctx context.Context, configs []aws.Config, tc TeardownConfig) ([]*procedurehelpers.Report, error) {
	err := tc.Validate()
	if err != nil {
		return nil, err
	}

	reports := make([]*procedurehelpers.Report, 0)

	for _, cfg := range configs {
		lf := log.Fields{
			"region": cfg.Region,
		}

		callerID, err := CallerIdentity(ctx, sts.NewFromConfig(cfg), cfg.Region)
		if err != nil {
			log.WithContext(ctx).WithError(err).WithFields(lf).Error("Error retrieving account information")
			return reports, fmt.Errorf("error getting caller identity for region %v: %w", cfg.Region, err)
		}

		log.WithContext(ctx).WithFields(lf).WithFields(log.Fields{
			"account": aws.ToString(callerID.Account),
			"arn":     aws.ToString(callerID.Arn),
			"dry-run": tc.DryRun,
		}).Info("Tearing down region")

		regionReports, err := TeardownRegion(ctx, cfg.Region, NewClients(cfg), tc)
		reports = append(reports, regionReports...)

		if err != nil {
			return reports, err
		}
	}

	return reports, nil
}
