package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/infrastructure/awsconf"
)

// Alerter notifies operators about conditions that need a human, such as an
// email that exhausted its delivery attempts.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

type publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type alerter struct {
	client   publisher
	topicARN string
}

// NewAlerter publishes to the SNS_ALERT_TOPIC_ARN topic.
func NewAlerter(ctx context.Context, cfg *config.Config) (Alerter, error) {
	if cfg.AlertTopicARN == "" {
		return nil, fmt.Errorf("SNS_ALERT_TOPIC_ARN not set")
	}
	awsCfg, err := awsconf.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if ep := awsconf.Endpoint(cfg); ep != nil {
			o.BaseEndpoint = ep
		}
	})
	return &alerter{client: client, topicARN: cfg.AlertTopicARN}, nil
}

func (a *alerter) Alert(ctx context.Context, subject, message string) error {
	// SNS caps email-protocol subjects at 100 characters.
	if len(subject) > 100 {
		subject = subject[:100]
	}
	_, err := a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Nop discards alerts. Used when no topic is configured.
type Nop struct{}

func (Nop) Alert(context.Context, string, string) error { return nil }
