package echoapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/auth"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

const (
	contextSessionKey = "session"
	contextClaimsKey  = "claims"
	authScheme        = "Bearer"
)

var errTokenSigningFailed = errors.New("signing token")

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Session    tenant.Session `json:"session"`
	RememberMe bool           `json:"remember_me,omitempty"`
}

type tokenIssuer struct {
	appName    string
	secret     []byte
	expiration time.Duration
	rememberMe time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

func newTokenIssuer(conf *core.Config) tokenIssuer {
	return tokenIssuer{
		appName:    conf.AppName,
		secret:     []byte(conf.SecretKey),
		expiration: conf.Server.JWTExpirationDelta,
		rememberMe: conf.Server.RememberMeExpirationDelta,
		cookieName: conf.Server.CookieName,
		secure:     !(conf.Debug || conf.TestMode),
		now:        core.Now,
	}
}

func (ti tokenIssuer) lifetime(rememberMe bool) time.Duration {
	if rememberMe {
		return ti.rememberMe
	}
	return ti.expiration
}

// Claims builds the claims of sess, valid from now on.
func (ti tokenIssuer) Claims(sess tenant.Session, rememberMe bool) *Claims {
	now := ti.now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ti.appName,
			Subject:   strconv.FormatInt(sess.UserID, 10),
			ExpiresAt: now.Add(ti.lifetime(rememberMe)).Unix(),
			IssuedAt:  now.Unix(),
		},
		Session:    sess,
		RememberMe: rememberMe,
	}
}

// Generate generates a signed JWT token string representing the Claims.
func (ti tokenIssuer) Generate(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(ti.secret)
	if err != nil {
		return "", errTokenSigningFailed
	}
	return ss, nil
}

func (ti tokenIssuer) parse(raw string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != middleware.AlgorithmHS256 {
			return nil, errors.Errorf("unexpected jwt signing method=%v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// lookup reads the token from the Authorization header, then from the session cookie.
func (ti tokenIssuer) lookup(ctx echo.Context) string {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if l := len(authScheme); len(auth) > l+1 && strings.EqualFold(auth[:l], authScheme) {
		return strings.TrimSpace(auth[l+1:])
	}
	if cookie, err := ctx.Cookie(ti.cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// middleware authenticates the request. The token only names the user: role, school and status
// are read from the store on every request, a school override survives only for the super role.
func (ti tokenIssuer) middleware(users *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			raw := ti.lookup(ctx)
			if raw == "" {
				return middleware.ErrJWTMissing
			}
			claims, err := ti.parse(raw)
			if err != nil {
				return err
			}
			usr, err := users.Get(ctx.Request().Context(), claims.Session.UserID, tenant.AllSchools())
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding session user")
			}
			if !usr.IsActive() {
				return auth.ErrAccountInactive
			}
			claims.Session = usr.Session(claims.Session.CurrentSchoolID)
			ctx.Set(contextClaimsKey, claims)
			ctx.Set(contextSessionKey, claims.Session)
			return next(ctx)
		}
	}
}

// issue signs the claims of sess and hands the token over as an HttpOnly cookie.
func (ti tokenIssuer) issue(ctx echo.Context, sess tenant.Session, rememberMe bool) (string, *Claims, error) {
	claims := ti.Claims(sess, rememberMe)
	token, err := ti.Generate(claims)
	if err != nil {
		return "", nil, err
	}
	ctx.SetCookie(&http.Cookie{
		Name:     ti.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Unix(claims.ExpiresAt, 0),
		HttpOnly: true,
		Secure:   ti.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, claims, nil
}

func (ti tokenIssuer) clearCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     ti.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   ti.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func getContextSession(ctx echo.Context) (tenant.Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(tenant.Session); ok {
		return sess, nil
	}
	return tenant.Session{}, errUnauthorized
}

func getContextClaims(ctx echo.Context) (*Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*Claims); ok {
		return claims, nil
	}
	return nil, errUnauthorized
}
