package paygate

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/livecart/lc-checkout/pkg/errors"
	"github.com/livecart/lc-checkout/pkg/status"
)

type PaygateRepository interface {
	CreatePaymentObject(ctx context.Context, req CreatePaymentObjectRequest) (CreatePaymentObjectResponse, error)
	GetPaymentStatus(ctx context.Context, externalRef string) (PaymentStatusResponse, error)
	VerifyNotificationSignature(payload []byte, signature string) error
}

type paygateRepository struct {
	baseURL       string
	apiKey        string
	webhookSecret []byte
	logger        *logrus.Logger
	hc            *http.Client
}

func NewPaygateRepository(baseURL, apiKey, webhookSecret string, logger *logrus.Logger, hc *http.Client) PaygateRepository {
	return &paygateRepository{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: []byte(webhookSecret),
		logger:        logger,
		hc:            hc,
	}
}

func (r *paygateRepository) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	hr, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusBadGateway, status.GATEWAY_ERROR, "an error occurred while calling payment gateway")
	}

	hr.Header.Add("Content-Type", "application/json")
	hr.Header.Add("Accept", "application/json")
	hr.Header.Add("Authorization", fmt.Sprintf("Bearer %s", r.apiKey))

	hresp, err := r.hc.Do(hr)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusBadGateway, status.GATEWAY_ERROR, "an error occurred while calling payment gateway")
	}
	defer hresp.Body.Close()

	respBody, err := io.ReadAll(hresp.Body)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusBadGateway, status.GATEWAY_ERROR, "an error occurred while calling payment gateway")
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		r.logger.WithContext(ctx).WithField("body", string(respBody)).WithField("code", hresp.StatusCode).Error("payment gateway returned non-2xx")
		return errors.New(http.StatusBadGateway, status.GATEWAY_ERROR, "payment gateway rejected the request")
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusBadGateway, status.GATEWAY_ERROR, "an error occurred while decoding payment gateway response")
	}

	return nil
}

// CreatePaymentObject implements PaygateRepository.
func (r *paygateRepository) CreatePaymentObject(ctx context.Context, req CreatePaymentObjectRequest) (CreatePaymentObjectResponse, error) {
	reqBuff, _ := json.Marshal(req)
	url := fmt.Sprintf("%s/v1/payment-objects", r.baseURL)

	var resp CreatePaymentObjectResponse
	if err := r.do(ctx, http.MethodPost, url, reqBuff, &resp); err != nil {
		return CreatePaymentObjectResponse{}, err
	}

	return resp, nil
}

// GetPaymentStatus implements PaygateRepository.
func (r *paygateRepository) GetPaymentStatus(ctx context.Context, externalRef string) (PaymentStatusResponse, error) {
	url := fmt.Sprintf("%s/v1/payment-objects/%s", r.baseURL, externalRef)

	var resp PaymentStatusResponse
	if err := r.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return PaymentStatusResponse{}, err
	}

	return resp, nil
}

// VerifyNotificationSignature implements PaygateRepository. The gateway signs
// the raw payload with HMAC-SHA256 over the shared webhook secret.
func (r *paygateRepository) VerifyNotificationSignature(payload []byte, signature string) error {
	mac := hmac.New(sha256.New, r.webhookSecret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New(http.StatusUnauthorized, status.INVALID_SIGNATURE, "notification signature mismatch")
	}

	return nil
}
