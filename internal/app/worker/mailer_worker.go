package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"accounts_api/internal/app/service"
	"accounts_api/internal/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MailerWorker drains the reset-mail queue and delivers each message to
// the configured delivery endpoint. Delivery failures are logged and
// dropped: the reset-request path already promised success to the caller.
type MailerWorker struct {
	rdb    *redis.Client
	client *http.Client
}

func NewMailerWorker(rdb *redis.Client) *MailerWorker {
	return &MailerWorker{
		rdb:    rdb,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// DeliveryRequest is the format sent to the external mail delivery service
type DeliveryRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	MessageID string `json:"message_id"`
}

func (w *MailerWorker) Start(ctx context.Context) {
	log.Println("Mailer worker started, listening to queue:", config.AppConfig.MailQueueName)
	for {
		select {
		case <-ctx.Done():
			log.Println("Mailer worker stopping...")
			return
		default:
			// Blocking pop from Redis queue
			result, err := w.rdb.BRPop(ctx, 0*time.Second, config.AppConfig.MailQueueName).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					log.Printf("Mailer BRPop exiting or timed out: %v", err)
					time.Sleep(1 * time.Second) // Avoid busy-looping on certain errors
					continue
				}
				log.Printf("ERROR: Failed to BRPop from Redis queue '%s': %v", config.AppConfig.MailQueueName, err)
				time.Sleep(5 * time.Second) // Wait before retrying on other errors
				continue
			}

			// result is an array: [queueName, value]
			if len(result) < 2 || result[1] == "" {
				log.Println("WARN: BRPop returned empty mail job.")
				continue
			}
			w.processJobWithLock(ctx, result[1])
		}
	}
}

// processJobWithLock serializes delivery across worker instances with a
// redis lock, so a horizontally scaled deployment does not hammer the
// delivery endpoint in parallel.
func (w *MailerWorker) processJobWithLock(ctx context.Context, rawJob string) {
	lockValue := uuid.NewString() // Unique value for this lock instance
	lockTTL := time.Duration(config.AppConfig.MailLockTTLSeconds) * time.Second

	ok, err := w.rdb.SetNX(ctx, config.AppConfig.MailLockKey, lockValue, lockTTL).Result()
	if err != nil {
		log.Printf("ERROR: Failed to attempt mail lock acquisition: %v", err)
		w.requeueJob(ctx, rawJob)
		return
	}
	if !ok {
		log.Println("INFO: Could not acquire mail lock, another worker is busy. Re-queueing.")
		w.requeueJob(ctx, rawJob)
		return
	}

	defer func() {
		// Release lock only if we still hold it (compare-and-delete)
		script := redis.NewScript(`
            if redis.call("get", KEYS[1]) == ARGV[1] then
                return redis.call("del", KEYS[1])
            else
                return 0
            end
        `)
		deleted, err := script.Run(ctx, w.rdb, []string{config.AppConfig.MailLockKey}, lockValue).Result()
		if err != nil {
			log.Printf("ERROR: Failed to release mail lock: %v", err)
		} else if deleted.(int64) != 1 {
			log.Println("WARN: Did not release mail lock; it might have expired or been taken by another.")
		}
	}()

	w.deliver(ctx, rawJob)
}

func (w *MailerWorker) requeueJob(ctx context.Context, rawJob string) {
	if err := w.rdb.RPush(ctx, config.AppConfig.MailQueueName, rawJob).Err(); err != nil {
		log.Printf("ERROR: Failed to re-queue mail job: %v", err)
	} else {
		log.Println("INFO: Mail job re-queued.")
	}
}

func (w *MailerWorker) deliver(ctx context.Context, rawJob string) {
	var job service.ResetMailJob
	if err := json.Unmarshal([]byte(rawJob), &job); err != nil {
		log.Printf("ERROR: Dropping malformed mail job: %v", err)
		return
	}

	resetLink := fmt.Sprintf("%s?token=%s", config.AppConfig.ResetLinkBaseURL, job.ResetToken)
	req := DeliveryRequest{
		From:      config.AppConfig.MailFromAddress,
		To:        job.ToAddress,
		Subject:   "Password reset request",
		Body:      "A password reset was requested for your account. Follow this link within the next hour to set a new password: " + resetLink,
		MessageID: job.ID,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		log.Printf("ERROR: Failed to marshal delivery request for job %s: %v", job.ID, err)
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, config.AppConfig.MailDeliveryURL, bytes.NewReader(payload))
	if err != nil {
		log.Printf("ERROR: Failed to build delivery request for job %s: %v", job.ID, err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		log.Printf("ERROR: Mail delivery failed for job %s: %v", job.ID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("ERROR: Mail delivery endpoint returned %d for job %s", resp.StatusCode, job.ID)
		return
	}
	log.Printf("INFO: Reset mail %s delivered to %s", job.ID, job.ToAddress)
}
