package sms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type AWSSNSProvider struct {
	client   *sns.Client
	region   string
	senderID string
}

// NewAWSSNSProvider uses static credentials when both keys are set and the
// default credential chain otherwise.
func NewAWSSNSProvider(ctx context.Context, region, accessKeyID, secretAccessKey, senderID string) (*AWSSNSProvider, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSNSProvider{
		client:   sns.NewFromConfig(cfg),
		region:   region,
		senderID: senderID,
	}, nil
}

func (a *AWSSNSProvider) SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error) {
	resp, err := a.client.Publish(ctx, a.buildInput(request))
	if err != nil {
		return &SMSResponse{
			To:     request.To,
			Status: "failed",
			Error:  err.Error(),
		}, err
	}

	return &SMSResponse{
		MessageID: aws.ToString(resp.MessageId),
		To:        request.To,
		Status:    "sent",
	}, nil
}

func (a *AWSSNSProvider) SendBulkSMS(ctx context.Context, requests []*SMSRequest) ([]*SMSResponse, error) {
	return sendEach(ctx, a, requests), nil
}

func (a *AWSSNSProvider) buildInput(request *SMSRequest) *sns.PublishInput {
	attrs := map[string]snsTypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(getSMSType(request.Type)),
		},
	}

	senderID := request.From
	if senderID == "" {
		senderID = a.senderID
	}
	if senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(senderID),
		}
	}

	return &sns.PublishInput{
		PhoneNumber:       aws.String(request.To),
		Message:           aws.String(request.Message),
		MessageAttributes: attrs,
	}
}

func getSMSType(messageType string) string {
	switch messageType {
	case "promotional":
		return "Promotional"
	default:
		return "Transactional"
	}
}
