package service

import (
	"time"

	"ecoquote/internal/jobs"

	"github.com/hibiken/asynq"
)

// JobClient interface for scheduling background jobs
type JobClient interface {
	ScheduleQuotationEmail(payload jobs.EmailPayload) error
	ScheduleTokenExpiry(quotationID string, expiresAt time.Time) error
	ScheduleEstimateSync(quotationID string) error
}

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) ScheduleQuotationEmail(payload jobs.EmailPayload) error {
	return jobs.ScheduleQuotationEmail(c.client, payload)
}

func (c *AsynqJobClient) ScheduleTokenExpiry(quotationID string, expiresAt time.Time) error {
	return jobs.ScheduleTokenExpiry(c.client, quotationID, expiresAt)
}

func (c *AsynqJobClient) ScheduleEstimateSync(quotationID string) error {
	return jobs.ScheduleEstimateSync(c.client, quotationID)
}
