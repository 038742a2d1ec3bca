package push

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(ctx context.Context, credentialsFile, projectID string) (*FCMProvider, error) {
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{
		client: client,
	}, nil
}

func (f *FCMProvider) SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error) {
	message := buildFCMMessage(request)

	response, err := f.client.Send(ctx, message)
	if err != nil {
		return &NotificationResponse{
			Success: false,
			Error:   err.Error(),
			Token:   request.Token,
		}, err
	}

	return &NotificationResponse{
		MessageID: response,
		Success:   true,
		Token:     request.Token,
	}, nil
}

func (f *FCMProvider) SendBulkNotifications(ctx context.Context, requests []*NotificationRequest) ([]*NotificationResponse, error) {
	messages := make([]*messaging.Message, len(requests))
	for i, req := range requests {
		messages[i] = buildFCMMessage(req)
	}

	batchResponse, err := f.client.SendEach(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to send bulk notifications: %w", err)
	}

	responses := make([]*NotificationResponse, len(requests))
	for i, response := range batchResponse.Responses {
		if response.Success {
			responses[i] = &NotificationResponse{
				MessageID: response.MessageID,
				Success:   true,
				Token:     requests[i].Token,
			}
		} else {
			responses[i] = &NotificationResponse{
				Success: false,
				Error:   response.Error.Error(),
				Token:   requests[i].Token,
			}
		}
	}

	return responses, nil
}

func buildFCMMessage(request *NotificationRequest) *messaging.Message {
	message := &messaging.Message{
		Data: request.Data,
	}

	// Set target
	if request.Token != "" {
		message.Token = request.Token
	} else if request.Topic != "" {
		message.Topic = request.Topic
	}

	if request.Title != "" || request.Body != "" {
		message.Notification = &messaging.Notification{
			Title: request.Title,
			Body:  request.Body,
		}
	}

	if request.Android != nil {
		android := &messaging.AndroidConfig{
			Priority:    request.Android.Priority,
			CollapseKey: request.CollapseKey,
			Notification: &messaging.AndroidNotification{
				Title:     request.Title,
				Body:      request.Body,
				Sound:     request.Android.Sound,
				Tag:       request.Android.Tag,
				ChannelID: request.Android.ChannelID,
			},
		}
		if request.TTL > 0 {
			ttl := time.Duration(request.TTL) * time.Second
			android.TTL = &ttl
		}
		message.Android = android
	}

	if request.IOS != nil {
		message.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: request.Title,
						Body:  request.Body,
					},
					Sound:    request.IOS.Sound,
					Category: request.IOS.Category,
				},
			},
		}
	}

	return message
}
