package clientsync

import (
	"context"

	"converso/backend/conversation/service"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/pagination"
)

// Client is the UI-facing send path. It stages an optimistic entry so the
// outgoing message renders immediately, routes the send through the
// arbiter and reconciles the staged entry against the confirmed ledger.
type Client struct {
	arbiter *Arbiter
	buffer  *OptimisticBuffer
	log     *logger.Logger
}

// NewClient creates a client over the given arbiter
func NewClient(arbiter *Arbiter, log *logger.Logger) *Client {
	return &Client{
		arbiter: arbiter,
		buffer:  NewOptimisticBuffer(),
		log:     log,
	}
}

// Messages returns the confirmed page of the conversation with any staged
// entries appended, oldest staged last, so unconfirmed sends stay visible
func (c *Client) Messages(ctx context.Context, source Source, conversationID string, params pagination.Params) ([]UnifiedMessage, error) {
	confirmed, err := c.arbiter.ListMessages(ctx, source, conversationID, params)
	if err != nil {
		return nil, err
	}
	return append(confirmed, c.buffer.Pending(conversationID)...), nil
}

// SendResult carries the outcome of one optimistic send: the exchange the
// server confirmed and the conversation's messages after reconciliation
type SendResult struct {
	Exchange *service.ExchangeResult
	Messages []UnifiedMessage
}

// SendMessage stages the outgoing message, dispatches it and reconciles.
// On success the confirmed list is re-fetched and the synthetic entry
// discarded; on failure the entry is removed and the error propagated. No
// ghost rows survive either outcome.
func (c *Client) SendMessage(ctx context.Context, source Source, conversationID, content string) (*SendResult, error) {
	staged := c.buffer.Stage(conversationID, source, content)

	exchange, err := c.arbiter.SendMessage(ctx, source, conversationID, content)
	if err != nil {
		if failed, ok := c.buffer.Fail(staged.CorrelationID); ok {
			c.log.Warn("Send failed, discarding optimistic entry",
				"conversationId", conversationID,
				"correlationId", failed.CorrelationID,
				"error", err.Error(),
			)
		}
		return nil, err
	}

	c.buffer.Drop(staged.CorrelationID)

	confirmed, err := c.arbiter.ListMessages(ctx, source, conversationID, pagination.Params{})
	if err != nil {
		// The send went through; a failed refresh must not look like a
		// failed send
		c.log.Warn("Post-send refresh failed", "conversationId", conversationID, "error", err.Error())
		confirmed = nil
	}

	return &SendResult{Exchange: exchange, Messages: confirmed}, nil
}

// PendingCount reports how many sends are still awaiting confirmation
func (c *Client) PendingCount() int {
	return c.buffer.Len()
}
