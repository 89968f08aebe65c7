package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	sessionTTL = 24 * time.Hour
	stateTTL   = 10 * time.Minute

	audienceSession = "session"
	audienceState   = "oauth-state"
)

var ErrInvalidToken = errors.New("invalid token")

// Issuer signs and validates HS256 tokens: user sessions and OAuth state.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

type stateClaims struct {
	ReturnURL string `json:"return_url"`
	jwt.RegisteredClaims
}

func (i *Issuer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithAudience(audience), jwt.WithTimeFunc(i.now))
	if err != nil {
		return errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// GenerateSession issues a session token for userID.
func (i *Issuer) GenerateSession(userID string) (string, error) {
	now := i.now()
	return i.sign(jwt.RegisteredClaims{
		Subject:   userID,
		Audience:  jwt.ClaimStrings{audienceSession},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	})
}

// ValidateSession returns the user id carried by a session token.
func (i *Issuer) ValidateSession(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	if err := i.parse(tokenString, &claims, audienceSession); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// GenerateState issues the OAuth state parameter carrying the URL to return
// to after login.
func (i *Issuer) GenerateState(returnURL string) (string, error) {
	now := i.now()
	return i.sign(stateClaims{
		ReturnURL: returnURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audienceState},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	})
}

func (i *Issuer) ValidateState(state string) (string, error) {
	var claims stateClaims
	if err := i.parse(state, &claims, audienceState); err != nil {
		return "", err
	}
	return claims.ReturnURL, nil
}
