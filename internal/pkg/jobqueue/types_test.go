package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/saaskit/internal/pkg/dashboard"
	"github.com/ManuelReschke/saaskit/internal/pkg/mail"
	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

func TestJobType(t *testing.T) {
	assert.Equal(t, "agent_query", string(JobTypeAgentQuery))
	assert.Equal(t, "send_email", string(JobTypeSendEmail))
	assert.Equal(t, "billing_initialize_user", string(JobTypeBillingInitializeUser))
	assert.Equal(t, "crawl", string(JobTypeCrawl))
}

func TestJobStatus(t *testing.T) {
	assert.Equal(t, "pending", string(JobStatusPending))
	assert.Equal(t, "processing", string(JobStatusProcessing))
	assert.Equal(t, "completed", string(JobStatusCompleted))
	assert.Equal(t, "failed", string(JobStatusFailed))
	assert.Equal(t, "retrying", string(JobStatusRetrying))
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name       string
		status     JobStatus
		retryCount int
		maxRetries int
		expected   bool
	}{
		{"Failed job with retries left", JobStatusFailed, 1, 3, true},
		{"Failed job at retry limit", JobStatusFailed, 3, 3, false},
		{"Completed job", JobStatusCompleted, 0, 3, false},
		{"Pending job", JobStatusPending, 0, 3, false},
		{"Processing job", JobStatusProcessing, 1, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Status: tt.status, RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			assert.Equal(t, tt.expected, job.IsRetryable())
		})
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 3}
	before := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(before))

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Run("agent query", func(t *testing.T) {
		in := dashboard.QueryRequest{DataSourceID: 4, UserID: 2, MessageID: 9, Model: "gpt-4o", Question: "how many users?"}
		m, err := PayloadToMap(in)
		require.NoError(t, err)

		var out dashboard.QueryRequest
		require.NoError(t, (&Job{Payload: m}).DecodePayload(&out))
		assert.Equal(t, in, out)
	})

	t.Run("email envelope", func(t *testing.T) {
		in := mail.Envelope{To: "a@example.com", Template: mail.TemplatePasswordReset, Data: views.EmailData{Name: "Ada", Token: "tok"}}
		m, err := PayloadToMap(in)
		require.NoError(t, err)

		var out mail.Envelope
		require.NoError(t, (&Job{Payload: m}).DecodePayload(&out))
		assert.Equal(t, in, out)
	})

	t.Run("unencodable payload", func(t *testing.T) {
		_, err := PayloadToMap(map[string]interface{}{"ch": make(chan int)})
		assert.Error(t, err)
	})
}
