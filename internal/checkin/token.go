package checkin

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ms-booking/internal/apperrors"
)

// PurposeCheckIn tags tokens that may drive a scan. Tokens minted for any other purpose are rejected.
const PurposeCheckIn = "checkin"

type tokenClaims struct {
	Date    string `json:"date"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies HS256 check-in tokens.
type TokenSigner struct {
	secret []byte
	Now    func() time.Time
}

func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), Now: time.Now}
}

// Issue binds a player to the date of their slot.
func (s *TokenSigner) Issue(playerID int64, date string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("checkin: token secret is not configured")
	}
	claims := tokenClaims{
		Date:    date,
		Purpose: PurposeCheckIn,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(playerID, 10),
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(s.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the player id and date of a token, or ErrInvalidToken.
func (s *TokenSigner) Verify(token string) (int64, string, error) {
	claims := new(tokenClaims)
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, "", apperrors.ErrInvalidToken
	}
	if claims.Purpose != PurposeCheckIn || claims.Date == "" {
		return 0, "", apperrors.ErrInvalidToken
	}
	playerID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || playerID <= 0 {
		return 0, "", apperrors.ErrInvalidToken
	}
	return playerID, claims.Date, nil
}

// IssueWithPurpose mints a token for another purpose. Verify rejects such tokens.
func (s *TokenSigner) IssueWithPurpose(playerID int64, date, purpose string) (string, error) {
	claims := tokenClaims{
		Date:    date,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(playerID, 10),
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(s.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
