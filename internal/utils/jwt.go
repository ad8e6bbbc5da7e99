package utils // package utils provides helper functions for token creation and hashing

import (
    "errors" // errors.Is for classifying parser failures
    "fmt"    // error wrapping
    "time"   // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens

    "github.com/iliyamo/agriplan/internal/apperr"
    "github.com/iliyamo/agriplan/internal/model"
)

// SessionToken represents a signed JWT session token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp.  The token is not persisted server side, so it stays valid until
// Exp even after the client discards it.
type SessionToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// SessionClaims is the payload of a session token: the user id, role and
// username plus the registered iat/exp claims.
type SessionClaims struct {
    ID       uint64 `json:"id"`
    Role     string `json:"role"`
    Username string `json:"username"`
    jwt.RegisteredClaims
}

// NewSessionToken builds and signs an HS256 JWT for a user.  now is the
// issuance time; the token expires ttl later.  JWT dates are whole seconds,
// so now is truncated first and Exp matches the signed exp claim.
func NewSessionToken(secret string, id model.Identity, ttl time.Duration, now time.Time) (SessionToken, error) {
    issued := now.UTC().Truncate(time.Second)
    exp := issued.Add(ttl)
    claims := SessionClaims{
        ID:       id.ID,
        Role:     id.Role,
        Username: id.Username,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   fmt.Sprint(id.ID),
            IssuedAt:  jwt.NewNumericDate(issued),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return SessionToken{}, err
    }
    return SessionToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken verifies the signature and expiry of raw against secret
// and returns the identity it asserts.  Expiry is evaluated at now, which
// keeps the function free of hidden clock reads.  An empty token is
// apperr.ErrMissingToken; every other failure is apperr.ErrInvalidToken.
func ParseSessionToken(secret, raw string, now time.Time) (model.Identity, error) {
    if raw == "" {
        return model.Identity{}, apperr.ErrMissingToken
    }
    claims := &SessionClaims{}
    tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
        // Reject anything that is not HMAC, in particular alg=none.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
        }
        return []byte(secret), nil
    },
        jwt.WithTimeFunc(func() time.Time { return now }),
        jwt.WithExpirationRequired(),
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
    )
    if err != nil {
        if errors.Is(err, jwt.ErrTokenExpired) {
            return model.Identity{}, fmt.Errorf("%w: expired", apperr.ErrInvalidToken)
        }
        return model.Identity{}, fmt.Errorf("%w: %v", apperr.ErrInvalidToken, err)
    }
    if !tok.Valid || claims.ID == 0 || claims.Role == "" {
        return model.Identity{}, apperr.ErrInvalidToken
    }
    return model.Identity{ID: claims.ID, Role: claims.Role, Username: claims.Username}, nil
}
