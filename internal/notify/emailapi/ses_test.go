package emailapi

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSESClient struct {
	inputs  []*sesv2.SendEmailInput
	output  *sesv2.SendEmailOutput
	sendErr error
}

func (f *fakeSESClient) SendEmail(ctx context.Context, input *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.output, nil
}

func testRequest() *Request {
	return &Request{
		From:    "alerts@example.com",
		To:      []string{"oncall@example.com"},
		Subject: "Compliance alert",
		Body:    "score dropped below threshold",
	}
}

func TestSES_Send(t *testing.T) {
	// SES omits MessageId in some responses; Send must tolerate that.
	client := &fakeSESClient{output: &sesv2.SendEmailOutput{}}
	p := &SES{client: client, region: "us-east-1"}

	if err := p.Send(context.Background(), testRequest()); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("SendEmail called %d times, want 1", len(client.inputs))
	}
	input := client.inputs[0]
	if got := *input.FromEmailAddress; got != "alerts@example.com" {
		t.Errorf("from = %q", got)
	}
	if got := input.Destination.ToAddresses; len(got) != 1 || got[0] != "oncall@example.com" {
		t.Errorf("to = %v", got)
	}
}

func TestSES_SendErrors(t *testing.T) {
	tests := []struct {
		name string
		p    *SES
		req  *Request
	}{
		{"unconfigured client", &SES{}, testRequest()},
		{"no recipients", &SES{client: &fakeSESClient{}}, &Request{From: "a@b.c", Subject: "s", Body: "b"}},
		{"transport failure", &SES{client: &fakeSESClient{sendErr: errors.New("throttled")}}, testRequest()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.Send(context.Background(), tt.req); err == nil {
				t.Error("Send() = nil, want error")
			}
		})
	}
}
