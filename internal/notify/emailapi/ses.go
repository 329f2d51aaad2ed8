package emailapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/enterprisehub/alertstream/internal/shared"
)

// sesAPI is the slice of the SES client this backend uses. Tests
// substitute an in-memory fake.
type sesAPI interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES sends email through AWS SES. Credentials come from the default
// AWS credential chain (environment, shared config, instance role).
type SES struct {
	client sesAPI
	region string
}

// NewSES creates an SES backend.
func NewSES() *SES {
	region := shared.GetEnvOrDefault("AWS_REGION", "us-east-1")

	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		slog.Warn("Failed to load AWS config, SES backend unavailable", "error", err)
		return &SES{region: region}
	}
	return &SES{
		client: sesv2.NewFromConfig(cfg),
		region: region,
	}
}

// Name returns the backend name.
func (p *SES) Name() string { return "ses" }

// IsConfigured reports whether the AWS client was initialized.
func (p *SES) IsConfigured() bool { return p.client != nil }

// Send delivers the email via AWS SES.
func (p *SES) Send(ctx context.Context, req *Request) error {
	if p.client == nil {
		return fmt.Errorf("ses client not initialized")
	}
	if len(req.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	var body types.Body
	if req.HTML != "" {
		body.Html = &types.Content{Data: &req.HTML}
	}
	if req.Body != "" {
		body.Text = &types.Content{Data: &req.Body}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: &req.From,
		Destination:      &types.Destination{ToAddresses: req.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &req.Subject},
				Body:    &body,
			},
		},
	}

	result, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	slog.Debug("Email sent via SES", "message_id", messageID, "to", req.To)
	return nil
}
