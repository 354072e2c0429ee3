package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

func TestRenderSummary(t *testing.T) {
	t.Run("no reports", func(t *testing.T) {
		var out bytes.Buffer

		renderSummary(&out, nil)

		assert.Empty(t, out.String())
	})

	t.Run("all deleted", func(t *testing.T) {
		var out bytes.Buffer

		instances := procedurehelpers.NewReport("ec2-instance", "eu-west-2")
		instances.Deleted = []string{"i-0a1b2c", "i-0d4e5f"}

		stacks := procedurehelpers.NewReport("cloudformation-stack", "eu-west-2")
		stacks.Deleted = []string{"AppPipe-prod"}
		stacks.Skipped = []string{"other-infra"}

		renderSummary(&out, []*procedurehelpers.Report{instances, stacks})

		s := out.String()
		assert.Contains(t, s, "REGION")
		assert.Contains(t, s, "TIMED OUT")
		assert.Contains(t, s, "ec2-instance")
		assert.Contains(t, s, "cloudformation-stack")
		assert.Contains(t, s, "TOTAL")
		// only the counts are shown when nothing went wrong
		assert.NotContains(t, s, "i-0a1b2c")
		assert.NotContains(t, s, "STATUS")
	})

	t.Run("unconfirmed and timed out", func(t *testing.T) {
		var out bytes.Buffer

		clusters := procedurehelpers.NewReport("eks-cluster", "us-east-1")
		clusters.Unconfirmed = []string{"prod/workers"}
		clusters.TimedOut = []string{"staging"}

		renderSummary(&out, []*procedurehelpers.Report{clusters})

		s := out.String()
		assert.Contains(t, s, "STATUS")
		assert.Contains(t, s, "prod/workers")
		assert.Contains(t, s, "unconfirmed")
		assert.Contains(t, s, "staging")
		assert.Contains(t, s, "timed out")
	})
}
