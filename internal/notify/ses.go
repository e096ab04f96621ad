package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/samber/oops"
)

type emailSender interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends reset emails through Amazon SES.
type SESNotifier struct {
	client emailSender
	from   string
}

// NewSESNotifier loads the default AWS config for region and returns an SES-backed notifier.
func NewSESNotifier(ctx context.Context, region, from string) (*SESNotifier, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, oops.Code("SES_CONFIG_FAILED").Wrap(err)
	}
	return &SESNotifier{client: ses.NewFromConfig(cfg), from: from}, nil
}

func (n *SESNotifier) SendPasswordReset(ctx context.Context, tenantID, email, token string, expiresAt time.Time) error {
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.from),
		Destination: &types.Destination{ToAddresses: []string{email}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(resetSubject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(resetBody(token, expiresAt)), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return oops.Code("EMAIL_SEND_FAILED").With("tenant_id", tenantID).Wrap(err)
	}
	return nil
}
