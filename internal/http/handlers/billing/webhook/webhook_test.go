package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ousashop/shop-backend/internal/paymentprovider"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) ProcessEvent(ctx context.Context, event paymentprovider.Event) error {
	return m.Called(ctx, event).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

const eventBody = `{"type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`

func TestWebhook_ValidSignature(t *testing.T) {
	service := new(ServiceMock)
	service.On("ProcessEvent", mock.Anything, mock.MatchedBy(func(event paymentprovider.Event) bool {
		return event.Type == "checkout.session.completed"
	})).Return(nil).Once()

	handler := New(newNoopLogger(), service, "whsec_test")

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(eventBody))
	req.Header.Set("X-Api-Signature", sign("whsec_test", []byte(eventBody)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	service.AssertExpectations(t)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	service := new(ServiceMock)
	handler := New(newNoopLogger(), service, "whsec_test")

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(eventBody))
	req.Header.Set("X-Api-Signature", sign("wrong-secret", []byte(eventBody)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	service.AssertNotCalled(t, "ProcessEvent", mock.Anything, mock.Anything)
}

func TestWebhook_MissingSignature(t *testing.T) {
	service := new(ServiceMock)
	handler := New(newNoopLogger(), service, "whsec_test")

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(eventBody))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWebhook_EmptySecretSkipsVerification(t *testing.T) {
	service := new(ServiceMock)
	service.On("ProcessEvent", mock.Anything, mock.Anything).Return(nil).Once()

	handler := New(newNoopLogger(), service, "")

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(eventBody))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	service.AssertExpectations(t)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	service := new(ServiceMock)
	handler := New(newNoopLogger(), service, "")

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString("not json"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	service.AssertNotCalled(t, "ProcessEvent", mock.Anything, mock.Anything)
}

func TestWebhook_ProcessingFailureAsksForRedelivery(t *testing.T) {
	service := new(ServiceMock)
	service.On("ProcessEvent", mock.Anything, mock.Anything).
		Return(errors.New("write failed")).Once()

	handler := New(newNoopLogger(), service, "")

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(eventBody))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	service.AssertExpectations(t)
}
