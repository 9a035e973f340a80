package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/user"
)

const (
	contextTokenKey     = "userToken"
	contextPrincipalKey = "principal"
)

// Claims represents the authorization claims transmitted via a JWT.
// Roles are never trusted from the token: the principal is reloaded on every request.
type Claims struct {
	jwt.StandardClaims
	Name string `json:"name,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func GetUserClaims(usr user.User, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  conf.AppName,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name: usr.Name,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	cfg := newJWTConfig(conf)
	token := jwt.NewWithClaims(jwt.GetSigningMethod(cfg.SigningMethod), claims)

	ss, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// principalMiddleware resolves the token subject into the acting principal.
func principalMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			p, err := svc.Principal(ctx.Request().Context(), claims.Subject)
			if err != nil {
				switch errors.Cause(err) {
				case user.ErrNotFound:
					return errUnauthorized
				case user.ErrInactive:
					return errAccountDeactivated
				}
				return errors.Wrap(err, "resolving principal")
			}
			ctx.Set(contextPrincipalKey, p)
			return next(ctx)
		}
	}
}

func getContextPrincipal(ctx echo.Context) (*access.Principal, error) {
	if p, ok := ctx.Get(contextPrincipalKey).(*access.Principal); ok && !p.IsAnonymous() {
		return p, nil
	}
	return nil, errUnauthorized
}
