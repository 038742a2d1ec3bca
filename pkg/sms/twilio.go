package sms

import (
	"context"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioProvider struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioProvider(accountSID, authToken, fromNumber string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioProvider{
		client:     client,
		fromNumber: fromNumber,
	}
}

func (t *TwilioProvider) SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := t.client.Api.CreateMessage(t.buildParams(request))
	if err != nil {
		return &SMSResponse{
			To:     request.To,
			Status: "failed",
			Error:  err.Error(),
		}, err
	}

	out := &SMSResponse{To: request.To}
	if resp.Sid != nil {
		out.MessageID = *resp.Sid
	}
	if resp.Status != nil {
		out.Status = string(*resp.Status)
	}
	return out, nil
}

func (t *TwilioProvider) SendBulkSMS(ctx context.Context, requests []*SMSRequest) ([]*SMSResponse, error) {
	return sendEach(ctx, t, requests), nil
}

func (t *TwilioProvider) buildParams(request *SMSRequest) *api.CreateMessageParams {
	params := &api.CreateMessageParams{}
	params.SetTo(request.To)
	params.SetFrom(t.getFromNumber(request.From))
	params.SetBody(request.Message)
	return params
}

func (t *TwilioProvider) getFromNumber(from string) string {
	if from != "" {
		return from
	}
	return t.fromNumber
}
