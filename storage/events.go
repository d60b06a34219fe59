package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"board-api/domain"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// EventFeed publishes board change events to an Azure Storage queue, one
// message per event.
type EventFeed struct {
	queue queueClient
}

// NewEventFeed creates an EventFeed for the named queue.
func NewEventFeed(connStr, queueName string) (*EventFeed, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &EventFeed{queue: q}, nil
}

func (f *EventFeed) Publish(ctx context.Context, ev domain.BoardEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = f.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
