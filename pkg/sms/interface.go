package sms

import "context"

type SMSProvider interface {
	SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error)
	SendBulkSMS(ctx context.Context, requests []*SMSRequest) ([]*SMSResponse, error)
}

type SMSRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
	Type    string `json:"type"` // transactional, promotional
}

type SMSResponse struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// sendEach sends requests one by one; a failed message is reported in its
// response slot without aborting the rest.
func sendEach(ctx context.Context, p SMSProvider, requests []*SMSRequest) []*SMSResponse {
	responses := make([]*SMSResponse, len(requests))

	for i, req := range requests {
		resp, err := p.SendSMS(ctx, req)
		if err != nil {
			resp = &SMSResponse{
				To:     req.To,
				Status: "failed",
				Error:  err.Error(),
			}
		}
		responses[i] = resp
	}

	return responses
}
