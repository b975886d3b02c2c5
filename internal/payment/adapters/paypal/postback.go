package paypal

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/payflow/internal/payment/domain"
)

const (
	verifiedToken  = "VERIFIED"
	notifyValidate = "_notify-validate"
)

// PostbackVerifier re-posts a received notification to the gateway and
// accepts it only when the response body is the literal VERIFIED token.
type PostbackVerifier struct {
	client *resty.Client
}

func NewPostbackVerifier() *PostbackVerifier {
	return &PostbackVerifier{
		client: resty.New().
			SetTimeout(20 * time.Second).
			SetRetryCount(2),
	}
}

func (v *PostbackVerifier) VerifyNotification(ctx context.Context, endpoint string, fields map[string]string) error {
	form := make(map[string]string, len(fields)+1)
	for key, value := range fields {
		form[key] = value
	}
	form["cmd"] = notifyValidate

	resp, err := v.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("notification postback: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("notification postback: unexpected status %d", resp.StatusCode())
	}
	if string(resp.Body()) != verifiedToken {
		return domain.ErrPostbackRejected
	}
	return nil
}
