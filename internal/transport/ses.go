package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client used by the ses transport.
type SESAPI interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
	GetSendQuota(ctx context.Context, params *ses.GetSendQuotaInput, optFns ...func(*ses.Options)) (*ses.GetSendQuotaOutput, error)
}

// SES sends raw, already-signed messages through Amazon SES.
type SES struct {
	client SESAPI
	region string
}

// NewSES creates an SES transport around an existing client.
func NewSES(client SESAPI, region string) *SES {
	return &SES{client: client, region: region}
}

// NewSESFromConfig loads AWS credentials from the default chain and creates
// an SES transport for region.
func NewSESFromConfig(ctx context.Context, region string) (*SES, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return NewSES(ses.NewFromConfig(awsCfg), region), nil
}

func (s *SES) GetName() string { return TypeSES }

// Send submits the raw message. SES accepts or refuses the message as a
// whole, so every recipient is reported as accepted on success. SES assigns
// its own Message-ID, which is returned as the receipt's MessageID.
func (s *SES) Send(ctx context.Context, env *Envelope) (*Receipt, error) {
	out, err := s.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(env.From),
		Destinations: env.Recipients,
		RawMessage:   &types.RawMessage{Data: env.Raw},
	})
	if err != nil {
		return nil, ClassifyError(TypeSES, err)
	}

	return &Receipt{
		MessageID: aws.ToString(out.MessageId),
		Accepted:  append([]string(nil), env.Recipients...),
		Response:  fmt.Sprintf("accepted by ses (%s), composed id %s", s.region, env.MessageID),
	}, nil
}

// HealthCheck verifies SES connectivity by reading the sending quota.
func (s *SES) HealthCheck(ctx context.Context) error {
	out, err := s.client.GetSendQuota(ctx, &ses.GetSendQuotaInput{})
	if err != nil {
		return fmt.Errorf("ses: health check: %w", err)
	}
	if out.Max24HourSend > 0 && out.SentLast24Hours >= out.Max24HourSend {
		return fmt.Errorf("ses: daily sending quota exhausted (%.0f/%.0f)", out.SentLast24Hours, out.Max24HourSend)
	}
	return nil
}
