package aws

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	messages []types.Message
	deleted  []string
	sent     []string
}

func (f *fakeSQS) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	out := &sqs.ReceiveMessageOutput{Messages: f.messages}
	f.messages = nil
	return out, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, sdkaws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, sdkaws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func TestPollOnce_DeletesOnlyHandled(t *testing.T) {
	api := &fakeSQS{messages: []types.Message{
		{Body: sdkaws.String(`{"sessionId":"cs_ok"}`), ReceiptHandle: sdkaws.String("r-ok")},
		{Body: sdkaws.String(`{"sessionId":"cs_fail"}`), ReceiptHandle: sdkaws.String("r-fail")},
		{ReceiptHandle: sdkaws.String("r-empty")},
	}}
	consumer := newSQSConsumer(api, "https://sqs.local/reconcile", nil)

	var seen []string
	err := consumer.pollOnce(context.Background(), func(_ context.Context, body string) error {
		seen = append(seen, body)
		if body == `{"sessionId":"cs_fail"}` {
			return errors.New("stripe unavailable")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, seen, 2)
	assert.Equal(t, []string{"r-ok"}, api.deleted)
}

func TestSendMessage(t *testing.T) {
	api := &fakeSQS{}
	consumer := newSQSConsumer(api, "https://sqs.local/reconcile", nil)

	require.NoError(t, consumer.SendMessage(context.Background(), `{"sessionId":"cs_1"}`))
	assert.Equal(t, []string{`{"sessionId":"cs_1"}`}, api.sent)
}

func TestStartPolling_StopsOnCancel(t *testing.T) {
	consumer := newSQSConsumer(&fakeSQS{}, "q", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := consumer.StartPolling(ctx, func(context.Context, string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollOnce_UnwrapsSNSNotifications(t *testing.T) {
	envelope := `{"Type":"Notification","MessageId":"m-1","TopicArn":"arn:aws:sns:ap-southeast-2:1:orders","Message":"{\"sessionId\":\"cs_sns\"}"}`
	api := &fakeSQS{messages: []types.Message{{Body: sdkaws.String(envelope), ReceiptHandle: sdkaws.String("r-sns")}}}
	consumer := newSQSConsumer(api, "q", nil)

	var seen []string
	require.NoError(t, consumer.pollOnce(context.Background(), func(_ context.Context, body string) error {
		seen = append(seen, body)
		return nil
	}))
	assert.Equal(t, []string{`{"sessionId":"cs_sns"}`}, seen)
	assert.Equal(t, []string{"r-sns"}, api.deleted)
}

func TestUnwrapSNS_PlainBodiesPassThrough(t *testing.T) {
	assert.Equal(t, `{"sessionId":"cs_1"}`, unwrapSNS(`{"sessionId":"cs_1"}`))
	assert.Equal(t, "not json", unwrapSNS("not json"))
	assert.Equal(t, `{"Type":"SubscriptionConfirmation"}`, unwrapSNS(`{"Type":"SubscriptionConfirmation"}`))
}
