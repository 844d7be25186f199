package auth

import (
	"time"

	"ecoquote/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

const responseIssuer = "ecoquote/response"

// ResponseClaims bind a response link to one quotation, one action and one nonce.
// Subject is the quotation id and ID the nonce stored on the quotation row.
type ResponseClaims struct {
	Action model.Action `json:"act"`
	jwt.RegisteredClaims
}

// ResponseToken is a parsed, signature-checked response link token
type ResponseToken struct {
	QuotationID string
	Action      model.Action
	Nonce       string
	ExpiresAt   time.Time
}

// ResponseSigner issues and parses the tokens emailed to clients
type ResponseSigner struct {
	key []byte
}

func NewResponseSigner(secret string) *ResponseSigner {
	return &ResponseSigner{key: []byte(secret)}
}

func (s *ResponseSigner) Issue(quotationID string, action model.Action, nonce string, expiresAt time.Time) (string, error) {
	claims := ResponseClaims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    responseIssuer,
			Subject:   quotationID,
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse checks the signature and shape of a token. Expiry is returned rather
// than enforced so callers can still tell a resolved quotation from an expired link.
func (s *ResponseSigner) Parse(tokenString string) (ResponseToken, error) {
	claims := &ResponseClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return ResponseToken{}, ErrInvalidToken
	}
	if claims.Issuer != responseIssuer || claims.Subject == "" || claims.ID == "" ||
		!claims.Action.Valid() || claims.ExpiresAt == nil {
		return ResponseToken{}, ErrInvalidToken
	}
	return ResponseToken{
		QuotationID: claims.Subject,
		Action:      claims.Action,
		Nonce:       claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
