package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tempuro/auth-service/internal/domain"
	"github.com/tempuro/auth-service/pkg/breaker"
	pkgkafka "github.com/tempuro/auth-service/pkg/kafka"
	"github.com/tempuro/auth-service/pkg/logger"
)

// Kafka topic constants for auth domain events.
const (
	TopicAccountRegistered = "auth.account.registered"
	TopicSessionStarted    = "auth.session.started"
)

// AggregateTypeAccount is the aggregate type of every auth event.
const AggregateTypeAccount = "account"

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "auth-service"

// AccountRegisteredData is the payload for an account.registered event.
type AccountRegisteredData struct {
	AccountID int64     `json:"account_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStartedData is the payload for a session.started event.
type SessionStartedData struct {
	AccountID int64     `json:"account_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"refresh_expires_at"`
	StartedAt time.Time `json:"started_at"`
}

// Publisher is the part of pkg/kafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth domain events to Kafka through a circuit breaker.
type Producer struct {
	publisher Publisher
	breaker   *breaker.Breaker
	logger    *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(publisher Publisher, cb *breaker.Breaker, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		breaker:   cb,
		logger:    logger,
	}
}

// PublishAccountRegistered publishes an account.registered event.
func (p *Producer) PublishAccountRegistered(ctx context.Context, account *domain.Account) error {
	roles := make([]string, 0, len(account.Roles))
	for _, r := range account.Roles {
		roles = append(roles, r.Name)
	}

	data := AccountRegisteredData{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Roles:     roles,
		CreatedAt: account.CreatedAt,
	}
	return p.publish(ctx, TopicAccountRegistered, account.ID, data)
}

// PublishSessionStarted publishes a session.started event.
func (p *Producer) PublishSessionStarted(ctx context.Context, token *domain.RefreshToken) error {
	data := SessionStartedData{
		AccountID: token.AccountID,
		Email:     token.AccountEmail,
		ExpiresAt: token.ExpiresAt,
		StartedAt: token.CreatedAt,
	}
	return p.publish(ctx, TopicSessionStarted, token.AccountID, data)
}

func (p *Producer) publish(ctx context.Context, topic string, accountID int64, data any) error {
	evt, err := pkgkafka.NewEvent(topic, strconv.FormatInt(accountID, 10), AggregateTypeAccount, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.publisher.Publish(ctx, topic, evt)
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published auth event",
		slog.String("topic", topic),
		slog.Int64("account_id", accountID),
	)
	return nil
}

// Discard drops every event. It is used when no Kafka brokers are configured.
type Discard struct{}

// PublishAccountRegistered does nothing.
func (Discard) PublishAccountRegistered(context.Context, *domain.Account) error { return nil }

// PublishSessionStarted does nothing.
func (Discard) PublishSessionStarted(context.Context, *domain.RefreshToken) error { return nil }
