package service

import (
	"context"
	"encoding/json"
	"log"

	"accounts_api/internal/common"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResetMailJob is the payload pushed to the mail queue and consumed by
// the mailer worker.
type ResetMailJob struct {
	ID         string `json:"id"`
	ToAddress  string `json:"to_address"`
	ResetToken string `json:"reset_token"`
}

// MailService hands reset mails to the delivery pipeline by enqueueing
// them on Redis. Delivery itself happens in the mailer worker; from the
// caller's perspective this is fire-and-forget.
type MailService struct {
	rdb       *redis.Client
	queueName string
}

func NewMailService(rdb *redis.Client, queueName string) *MailService {
	return &MailService{rdb: rdb, queueName: queueName}
}

func (s *MailService) EnqueueResetMail(ctx context.Context, toAddress, resetToken string) error {
	job := ResetMailJob{
		ID:         uuid.NewString(),
		ToAddress:  toAddress,
		ResetToken: resetToken,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return common.Errorf("failed to marshal reset mail job: %w", err)
	}
	if err := s.rdb.LPush(ctx, s.queueName, payload).Err(); err != nil {
		return common.Errorf("failed to push reset mail job to queue: %w", err)
	}
	log.Printf("Reset mail job %s enqueued for delivery.", job.ID)
	return nil
}
