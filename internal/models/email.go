package models

// Kinds of outbound email messages published to the queue.
const (
	EmailKindVerification  = "verification"
	EmailKindPasswordReset = "password_reset"
)

// EmailMessage is the payload published to RabbitMQ for the sender worker.
type EmailMessage struct {
	Kind      string `json:"kind"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	Code      string `json:"code"`
}
