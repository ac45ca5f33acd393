package jobqueue

import (
	"context"

	"github.com/ManuelReschke/saaskit/internal/pkg/mail"
)

// MailDispatcher queues envelopes as send_email jobs.
type MailDispatcher struct {
	queue *Queue
}

func NewMailDispatcher(q *Queue) *MailDispatcher {
	return &MailDispatcher{queue: q}
}

func (d *MailDispatcher) Dispatch(ctx context.Context, e mail.Envelope) error {
	_, err := d.queue.Enqueue(JobTypeSendEmail, e)
	return err
}
