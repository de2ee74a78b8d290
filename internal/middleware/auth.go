package middleware

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// Security scheme names declared in the OpenAPI document
const (
	SchemeBearer = "bearerAuth"
	SchemeCron   = "cronAuth"
	SchemeTwilio = "twilioSignature"
)

type ginContextKey struct{}

// GinContextKey carries the *gin.Context through request validation so that
// authentication can attach the caller to it
var GinContextKey = ginContextKey{}

var (
	// ErrUnauthorized marks credentials that were missing, malformed or rejected
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAuthBackend marks an authentication attempt that failed for a reason
	// unrelated to the caller's credentials
	ErrAuthBackend = errors.New("authentication backend failure")
)

// Claims is the payload of a user access token
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserProvisioner loads the account behind a token, creating it on first use
type UserProvisioner interface {
	EnsureUser(ctx context.Context, userID, email string) (*model.User, error)
}

// SignatureValidator checks the X-Twilio-Signature of a webhook request
type SignatureValidator interface {
	ValidateSignature(url string, params map[string]string, signature string) bool
}

// Authenticator resolves the security schemes of the API
type Authenticator struct {
	jwtSecret  []byte
	cronSecret []byte
	users      UserProvisioner
	twilio     SignatureValidator
	webhookURL string
	logger     *zap.Logger
}

// AuthConfig groups the secrets and collaborators of an Authenticator
type AuthConfig struct {
	JWTSecret  string
	CronSecret string
	Users      UserProvisioner
	// Twilio may be nil, in which case every webhook request is rejected
	Twilio     SignatureValidator
	WebhookURL string
}

// NewAuthenticator creates a new Authenticator
func NewAuthenticator(cfg AuthConfig, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		jwtSecret:  []byte(cfg.JWTSecret),
		cronSecret: []byte(cfg.CronSecret),
		users:      cfg.Users,
		twilio:     cfg.Twilio,
		webhookURL: cfg.WebhookURL,
		logger:     logger,
	}
}

// Authenticate implements openapi3filter.AuthenticationFunc
func (a *Authenticator) Authenticate(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	req := input.RequestValidationInput.Request

	switch input.SecuritySchemeName {
	case SchemeBearer:
		return a.authenticateUser(ctx, req)
	case SchemeCron:
		return a.authenticateCron(req)
	case SchemeTwilio:
		return a.authenticateTwilio(req)
	}
	return fmt.Errorf("%w: unsupported security scheme %q", ErrUnauthorized, input.SecuritySchemeName)
}

func bearerToken(req *http.Request) (string, error) {
	header := req.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	return strings.TrimSpace(token), nil
}

// ParseToken verifies an HS256 user token and returns its claims
func (a *Authenticator) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: token subject is not a user id", ErrUnauthorized)
	}
	return claims, nil
}

func (a *Authenticator) authenticateUser(ctx context.Context, req *http.Request) error {
	raw, err := bearerToken(req)
	if err != nil {
		return err
	}

	claims, err := a.ParseToken(raw)
	if err != nil {
		return err
	}

	user, err := a.users.EnsureUser(ctx, claims.UserID, claims.Email)
	if err != nil {
		a.logger.Error("failed to load authenticated user",
			zap.String("user_id", claims.UserID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrAuthBackend, err)
	}

	if c, ok := ctx.Value(GinContextKey).(*gin.Context); ok {
		c.Set(ContextUserKey, user)
		c.Set(ContextUserIDKey, user.ID)
	}
	return nil
}

func (a *Authenticator) authenticateCron(req *http.Request) error {
	if len(a.cronSecret) == 0 {
		return fmt.Errorf("%w: job trigger secret not configured", ErrUnauthorized)
	}

	token, err := bearerToken(req)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(token), a.cronSecret) != 1 {
		return fmt.Errorf("%w: invalid job trigger secret", ErrUnauthorized)
	}
	return nil
}

func (a *Authenticator) authenticateTwilio(req *http.Request) error {
	if a.twilio == nil {
		return fmt.Errorf("%w: SMS webhook is not configured", ErrUnauthorized)
	}

	signature := req.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrUnauthorized)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("%w: unreadable body", ErrUnauthorized)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return fmt.Errorf("%w: malformed form body", ErrUnauthorized)
	}

	// Twilio signs single-valued fields; repeated keys keep the first value
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	if !a.twilio.ValidateSignature(a.webhookURL, params, signature) {
		a.logger.Warn("rejected webhook with invalid signature",
			zap.String("path", req.URL.Path),
		)
		return fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	}
	return nil
}

// CurrentUser returns the user attached by bearer authentication
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok && user != nil
}
