package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/overmindtech/teardown/aws/proc"
	"github.com/overmindtech/teardown/aws/procedurehelpers"
	"github.com/overmindtech/teardown/aws/procedures"
)

// This file contains re-usable sets of flags and the functions that turn
// them back into config

// Adds flags for getting credentials and choosing regions
func addAwsFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("aws-access-strategy", "defaults", "The strategy to use to access the AWS account. Valid values: 'access-key', 'external-id', 'sso-profile', 'defaults'. Default: 'defaults'.")
	cmd.PersistentFlags().String("aws-access-key-id", "", "The ID of the access key to use")
	cmd.PersistentFlags().String("aws-secret-access-key", "", "The secret access key to use for auth")
	cmd.PersistentFlags().String("aws-external-id", "", "The external ID to use when assuming the target role")
	cmd.PersistentFlags().String("aws-target-role-arn", "", "The role to assume in the target account")
	cmd.PersistentFlags().String("aws-profile", "", "The AWS SSO Profile to use. Defaults to $AWS_PROFILE, then whatever the AWS SDK's SSO config defaults to")
	cmd.PersistentFlags().StringSlice("aws-regions", []string{}, "Comma-separated list of AWS regions to tear down. Regions are processed one at a time, in this order")
	cmd.PersistentFlags().BoolP("auto-config", "a", false, "Use the local AWS config, the same as the AWS CLI could use. This can be set up with \"aws configure\"")
}

// Adds flags that control what gets deleted
func addTeardownFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringSlice("order", procedures.DefaultOrder, "The resource types to delete, in order. Types that are left out are not touched")
	cmd.PersistentFlags().StringSlice("wait", procedures.DefaultWaits, "Resource types that should wait for each deletion to finish before moving on. Only ecs-cluster, ec2-instance, eks-cluster and cloudformation-stack can wait. Lambda functions, EKS node groups and ECS services are always waited for")
	cmd.PersistentFlags().StringSlice("protected-stacks", procedures.DefaultProtectedStacks, "CloudFormation stacks with any of these substrings in their name are deleted before all other stacks")
	cmd.PersistentFlags().Bool("dry-run", false, "List everything that would be deleted without deleting it")
}

// Adds flags that bound how long a single deletion is waited for
func addWaitFlags(cmd *cobra.Command) {
	defaults := procedurehelpers.DefaultWaitConfig()

	cmd.PersistentFlags().Duration("wait-timeout", defaults.Timeout, "How long to wait for a single resource to be deleted")
	cmd.PersistentFlags().Duration("wait-initial-interval", defaults.InitialInterval, "How long to wait before the first re-check of a resource that is being deleted")
	cmd.PersistentFlags().Duration("wait-max-interval", defaults.MaxInterval, "The longest gap between checks of a resource that is being deleted")
	cmd.PersistentFlags().Uint("wait-max-attempts", defaults.MaxAttempts, "The number of checks before giving up on a resource that is being deleted. 0 means only --wait-timeout applies")
}

// parseListArgument Reads a list from viper. Values from env vars and config
// files may be a single comma separated string, blanks are dropped
func parseListArgument(key string) []string {
	list := []string{}

	for _, value := range viper.GetStringSlice(key) {
		for _, item := range strings.Split(value, ",") {
			item = strings.TrimSpace(item)
			if item != "" {
				list = append(list, item)
			}
		}
	}

	return list
}

func parseAwsAuthConfig() proc.AwsAuthConfig {
	return proc.AwsAuthConfig{
		Strategy:        viper.GetString("aws-access-strategy"),
		AccessKeyID:     viper.GetString("aws-access-key-id"),
		SecretAccessKey: viper.GetString("aws-secret-access-key"),
		ExternalID:      viper.GetString("aws-external-id"),
		TargetRoleARN:   viper.GetString("aws-target-role-arn"),
		Profile:         viper.GetString("aws-profile"),
		AutoConfig:      viper.GetBool("auto-config"),
		Regions:         parseListArgument("aws-regions"),
	}
}

func parseWaitConfig() procedurehelpers.WaitConfig {
	return procedurehelpers.WaitConfig{
		Timeout:         viper.GetDuration("wait-timeout"),
		InitialInterval: viper.GetDuration("wait-initial-interval"),
		MaxInterval:     viper.GetDuration("wait-max-interval"),
		MaxAttempts:     viper.GetUint("wait-max-attempts"),
	}
}

// parseTeardownConfig Reads and validates everything that controls the
// teardown apart from credentials
func parseTeardownConfig() (proc.TeardownConfig, error) {
	tc := proc.TeardownConfig{
		Order: parseListArgument("order"),
		Config: procedures.Config{
			DryRun:          viper.GetBool("dry-run"),
			WaitConfig:      parseWaitConfig(),
			Waits:           parseListArgument("wait"),
			ProtectedStacks: parseListArgument("protected-stacks"),
		},
	}

	err := tc.Validate()
	if err != nil {
		return proc.TeardownConfig{}, err
	}

	return tc, nil
}
