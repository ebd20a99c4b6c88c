package compactionwf

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const maxAttempts = 3

// Workflow folds one conversation. Attempts are spaced by Temporal's retry
// policy; the conversation's own failure counters are kept by the activity.
func Workflow(ctx workflow.Context, in Input) (Result, error) {
	var out Result
	if strings.TrimSpace(in.ConversationID) == "" {
		return out, fmt.Errorf("compactionwf: missing conversation_id")
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        30 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        10 * time.Minute,
			MaximumAttempts:        maxAttempts,
			NonRetryableErrorTypes: []string{ErrTypeNonRetryable},
		},
	})
	err := workflow.ExecuteActivity(ctx, ActivityCompact, in).Get(ctx, &out)
	return out, err
}
