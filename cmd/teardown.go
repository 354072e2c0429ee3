package cmd

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/overmindtech/teardown/aws/proc"
	"github.com/overmindtech/teardown/tracing"
)

// Teardown Reads the config, deletes everything in each region and prints a
// summary. Returns the exit code, which is non-zero after a panic
func Teardown(ctx context.Context, out io.Writer) (exitcode int) {
	ctx, span := tracing.Tracer().Start(ctx, "Teardown", trace.WithAttributes(
		attribute.String("ovm.teardown.runId", runID.String()),
	))
	defer span.End()
	defer tracing.LogRecoverToExitCode(ctx, "aws-teardown.Teardown", &exitcode)

	tc, err := parseTeardownConfig()
	if err != nil {
		log.WithContext(ctx).WithError(err).Error("Invalid teardown config")
		tracing.ReportError(ctx, err)
		return 1
	}

	awsAuthConfig := parseAwsAuthConfig()

	log.WithContext(ctx).WithFields(log.Fields{
		"aws-regions":         awsAuthConfig.Regions,
		"aws-access-strategy": awsAuthConfig.Strategy,
		"aws-external-id":     awsAuthConfig.ExternalID,
		"aws-target-role-arn": awsAuthConfig.TargetRoleARN,
		"aws-profile":         awsAuthConfig.Profile,
		"auto-config":         awsAuthConfig.AutoConfig,
		"order":               tc.Order,
		"wait":                tc.Waits,
		"protected-stacks":    tc.ProtectedStacks,
		"dry-run":             tc.DryRun,
		"wait-timeout":        tc.WaitConfig.Timeout,
	}).Info("Got config")

	span.SetAttributes(
		attribute.StringSlice("ovm.teardown.regions", awsAuthConfig.Regions),
		attribute.Bool("ovm.teardown.dryRun", tc.DryRun),
	)

	configs, err := proc.CreateAWSConfigs(awsAuthConfig)
	if err != nil {
		log.WithContext(ctx).WithError(err).Error("Could not create AWS configs")
		tracing.ReportError(ctx, err)
		return 1
	}

	reports, err := proc.Teardown(ctx, configs, tc)

	// whatever finished is always shown, even if the run was cut short
	renderSummary(out, reports)

	if err != nil {
		log.WithContext(ctx).WithError(err).Error("Teardown failed")
		tracing.ReportError(ctx, err)
		return 1
	}

	log.WithContext(ctx).WithField("regions", len(configs)).Info("Teardown complete")

	return 0
}
