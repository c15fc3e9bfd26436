package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"breakdown-api/domain"
)

// QueuePublisher sends task events to an Azure storage queue.
type QueuePublisher struct {
	queue *azqueue.QueueClient
}

// NewQueuePublisher creates a publisher for the named queue.
func NewQueuePublisher(connStr, queueName string) (*QueuePublisher, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 30,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueuePublisher{queue: q}, nil
}

// Publish enqueues each event in order, stopping at the first failure.
func (p *QueuePublisher) Publish(ctx context.Context, events ...domain.Event) error {
	for _, ev := range events {
		data, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		if _, err := p.queue.EnqueueMessage(ctx, data, nil); err != nil {
			return err
		}
	}
	return nil
}

func encodeEvent(ev domain.Event) (string, error) {
	return sonic.MarshalString(ev)
}
