package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/livecart/lc-checkout/pkg/errors"
	"github.com/livecart/lc-checkout/pkg/status"
)

type contextKey string

const accountContextKey contextKey = "session.account"

// Account is the authenticated buyer attached to a request context by the
// session middleware.
type Account struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Store resolves a session id (the jwt jti) to the buyer account stored at
// login time by the account service.
type Store interface {
	Get(ctx context.Context, sessionID string) (Account, error)
}

type redisSessionStore struct {
	logger    *logrus.Logger
	client    *goredis.Client
	keyPrefix string
}

// NewRedisSessionStore builds a store over the given key prefix, so buyer and
// operator sessions live in separate namespaces.
func NewRedisSessionStore(logger *logrus.Logger, client *goredis.Client, keyPrefix string) Store {
	return &redisSessionStore{
		logger:    logger,
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get implements Store.
func (s *redisSessionStore) Get(ctx context.Context, sessionID string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, fmt.Sprintf("%s:%s", s.keyPrefix, sessionID)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return Account{}, errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "session is expired or revoked")
		}
		s.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting session")
	}

	var acc Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while decoding session")
	}

	return acc, nil
}

// SetAccountToCtx returns a child context carrying the account.
func SetAccountToCtx(ctx context.Context, acc Account) context.Context {
	return context.WithValue(ctx, accountContextKey, acc)
}

// GetAccountFromCtx extracts the buyer account placed by the session
// middleware. Handlers behind the middleware can rely on it being present.
func GetAccountFromCtx(ctx context.Context) (Account, error) {
	acc, ok := ctx.Value(accountContextKey).(Account)
	if !ok {
		return Account{}, errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "no authenticated account in request context")
	}

	return acc, nil
}
