package notifier

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/leadpulse/leadpulse/internal/db"
)

// SNSSender texts lead reminders to the configured phone via AWS SNS.
type SNSSender struct {
	client *sns.Client
	phone  string
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
	Phone  string // E.164 destination
}

func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		phone:  cfg.Phone,
		logger: logger,
	}, nil
}

// Deliver sends the notification as an SMS via AWS SNS.
func (s *SNSSender) Deliver(ctx context.Context, n *db.Notification) error {
	if s.phone == "" {
		return fmt.Errorf("no destination phone configured")
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(s.phone),
		Message:     aws.String(n.Message),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	s.logger.Info("reminder texted via SNS",
		zap.String("notification_id", n.ID.String()),
		zap.String("phone_number", s.phone),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

func (s *SNSSender) Channel() string { return "sms" }
