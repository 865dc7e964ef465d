package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gitrueng/user-management-app/internal/domain"
	pkgkafka "github.com/gitrueng/user-management-app/pkg/kafka"
)

// Kafka topics for account domain events.
const (
	TopicAccountRegistered    = "user-management.account.registered"
	TopicAccountVerified      = "user-management.account.verified"
	TopicAccountPasswordReset = "user-management.account.password_reset"
	TopicAccountUpdated       = "user-management.account.updated"
	TopicAccountDeleted       = "user-management.account.deleted"
)

const (
	AggregateTypeAccount = "account"
	SourceUserManagement = "user-management"
)

// AccountData is the payload of the registered, verified and updated events.
type AccountData struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// AccountRefData identifies an account in the password_reset and deleted
// events.
type AccountRefData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func accountData(a *domain.Account) AccountData {
	return AccountData{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		PhoneNumber:   a.PhoneNumber,
		EmailVerified: a.EmailVerified,
	}
}

func accountRef(a *domain.Account) AccountRefData {
	return AccountRefData{ID: a.ID, Username: a.Username, Email: a.Email}
}

// Producer publishes account domain events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates an event producer on top of publisher.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

func (p *Producer) AccountRegistered(ctx context.Context, a *domain.Account) error {
	return p.publish(ctx, TopicAccountRegistered, a.ID, accountData(a))
}

func (p *Producer) AccountVerified(ctx context.Context, a *domain.Account) error {
	return p.publish(ctx, TopicAccountVerified, a.ID, accountData(a))
}

func (p *Producer) AccountUpdated(ctx context.Context, a *domain.Account) error {
	return p.publish(ctx, TopicAccountUpdated, a.ID, accountData(a))
}

func (p *Producer) PasswordReset(ctx context.Context, a *domain.Account) error {
	return p.publish(ctx, TopicAccountPasswordReset, a.ID, accountRef(a))
}

func (p *Producer) AccountDeleted(ctx context.Context, a *domain.Account) error {
	return p.publish(ctx, TopicAccountDeleted, a.ID, accountRef(a))
}

func (p *Producer) publish(ctx context.Context, topic, accountID string, data any) error {
	evt, err := pkgkafka.NewEvent(ctx, topic, accountID, AggregateTypeAccount, SourceUserManagement, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published account event",
		slog.String("topic", topic),
		slog.String("account_id", accountID),
	)
	return nil
}
