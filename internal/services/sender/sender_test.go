package sender

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ousashop/shop-backend/internal/lib/smtp"
)

type ClientMock struct {
	mock.Mock
	written bytes.Buffer
}

func (m *ClientMock) Mail(from string) error {
	return m.Called(from).Error(0)
}

func (m *ClientMock) Rcpt(to string) error {
	return m.Called(to).Error(0)
}

func (m *ClientMock) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *ClientMock) Quit() error {
	return m.Called().Error(0)
}

func (m *ClientMock) Close() error {
	return m.Called().Error(0)
}

type nopWriteCloser struct {
	*bytes.Buffer
}

func (nopWriteCloser) Close() error { return nil }

type TransportMock struct {
	mock.Mock
}

func (m *TransportMock) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *TransportMock) GetSMTPUser() string {
	return m.Called().String(0)
}

func newTestService(transport smtp.TransportInterface) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	return New(log, transport)
}

func TestHandleEmailMessage_SendsVerificationEmail(t *testing.T) {
	body := &bytes.Buffer{}
	client := new(ClientMock)
	client.On("Mail", "noreply@shop.example.com").Return(nil).Once()
	client.On("Rcpt", "user@example.com").Return(nil).Once()
	client.On("Data").Return(nopWriteCloser{body}, nil).Once()
	client.On("Quit").Return(nil).Once()
	client.On("Close").Return(nil).Once()

	transport := new(TransportMock)
	transport.On("Connect").Return(client, nil).Once()
	transport.On("GetSMTPUser").Return("noreply@shop.example.com")

	svc := newTestService(transport)
	err := svc.HandleEmailMessage([]byte(`{"kind":"verification","email":"user@example.com","first_name":"Ada","code":"123456"}`))
	require.NoError(t, err)

	payload := body.String()
	assert.Contains(t, payload, "Subject: Confirm your email")
	assert.Contains(t, payload, "Hello Ada")
	assert.Contains(t, payload, "Your verification code is: 123456")
	client.AssertExpectations(t)
	transport.AssertExpectations(t)
}

func TestHandleEmailMessage_PasswordResetSubject(t *testing.T) {
	body := &bytes.Buffer{}
	client := new(ClientMock)
	client.On("Mail", mock.Anything).Return(nil).Once()
	client.On("Rcpt", mock.Anything).Return(nil).Once()
	client.On("Data").Return(nopWriteCloser{body}, nil).Once()
	client.On("Quit").Return(nil).Once()
	client.On("Close").Return(nil).Once()

	transport := new(TransportMock)
	transport.On("Connect").Return(client, nil).Once()
	transport.On("GetSMTPUser").Return("noreply@shop.example.com")

	svc := newTestService(transport)
	err := svc.HandleEmailMessage([]byte(`{"kind":"password_reset","email":"user@example.com","code":"654321"}`))
	require.NoError(t, err)

	payload := body.String()
	assert.Contains(t, payload, "Subject: Reset your password")
	assert.Contains(t, payload, "Hello,")
	assert.Contains(t, payload, "Your password reset code is: 654321")
}

func TestHandleEmailMessage_UndecodableMessageIsDropped(t *testing.T) {
	transport := new(TransportMock)

	svc := newTestService(transport)
	err := svc.HandleEmailMessage([]byte("not json"))
	assert.NoError(t, err)
	transport.AssertNotCalled(t, "Connect")
}

func TestHandleEmailMessage_UnknownKindIsDropped(t *testing.T) {
	transport := new(TransportMock)

	svc := newTestService(transport)
	err := svc.HandleEmailMessage([]byte(`{"kind":"newsletter","email":"user@example.com"}`))
	assert.NoError(t, err)
	transport.AssertNotCalled(t, "Connect")
}

func TestHandleEmailMessage_TransportFailureRequeues(t *testing.T) {
	transport := new(TransportMock)
	transport.On("Connect").Return(nil, errors.New("connection refused")).Once()

	svc := newTestService(transport)
	err := svc.HandleEmailMessage([]byte(`{"kind":"verification","email":"user@example.com","code":"123456"}`))
	assert.Error(t, err)
	transport.AssertExpectations(t)
}
