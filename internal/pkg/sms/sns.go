package sms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const (
	SMSTypeTransactional = "Transactional"
	SMSTypePromotional   = "Promotional"

	attrSenderID = "AWS.SNS.SMS.SenderID"
	attrSMSType  = "AWS.SNS.SMS.SMSType"
)

type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS sends messages through AWS SNS direct-to-phone publishing.
type SNS struct {
	client   snsPublisher
	senderID string
	smsType  string
}

// SNSOptions configures SNS client initialization.
type SNSOptions struct {
	// Region is the AWS region.
	Region string
	// Endpoint overrides the AWS endpoint (localstack and friends).
	Endpoint string
	// AccessKey is the static access key ID.
	AccessKey string
	// SecretKey is the static secret access key.
	SecretKey string
	// SenderID is shown on handsets in countries that support it.
	SenderID string
	// SMSType is Transactional (default) or Promotional.
	SMSType string
}

// NewSNS loads the AWS config and builds an SNS sender.
func NewSNS(ctx context.Context, opts SNSOptions) (*SNS, error) {
	cfgOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(opts.Region))
	} else if opts.Endpoint != "" {
		cfgOpts = append(cfgOpts, config.WithRegion("us-east-1"))
	}
	if opts.AccessKey != "" || opts.SecretKey != "" {
		cfgOpts = append(cfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("sms: load aws config: %w", err)
	}

	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return newSNSWithClient(client, opts.SenderID, opts.SMSType), nil
}

func newSNSWithClient(client snsPublisher, senderID, smsType string) *SNS {
	if smsType != SMSTypePromotional {
		smsType = SMSTypeTransactional
	}
	return &SNS{client: client, senderID: senderID, smsType: smsType}
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

func (s *SNS) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	attrs := map[string]types.MessageAttributeValue{
		attrSMSType: stringAttr(s.smsType),
	}
	if s.senderID != "" {
		attrs[attrSenderID] = stringAttr(s.senderID)
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.To),
		Message:           aws.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("sms: sns publish: %w", err)
	}

	return aws.ToString(out.MessageId), nil
}

func (s *SNS) Close() error {
	return nil
}
