package awstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS records sent messages. Set Err to make SendMessage fail.
type SQS struct {
	mu   sync.Mutex
	sent []*sqs.SendMessageInput
	Err  error
}

func (q *SQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	q.sent = append(q.sent, params)
	id := fmt.Sprintf("msg-%d", len(q.sent))
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// Sent returns the inputs of successful sends in order.
func (q *SQS) Sent() []*sqs.SendMessageInput {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*sqs.SendMessageInput, len(q.sent))
	copy(out, q.sent)
	return out
}
