// Package security provides JWT token utilities
package security

import (
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ValidateJWT validates a JWT token and returns the claims
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GenerateVisitToken creates a JWT carrying the visit and session ids.
func GenerateVisitToken(visitID, sessionID, jwtSecret string) (string, error) {
	claims := jwt.MapClaims{
		"visitId":   visitID,
		"sessionId": sessionID,
		"iat":       time.Now().UTC().Unix(),
		"exp":       time.Now().UTC().Add(30 * 24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	result, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		log.Printf("ERROR: Failed to sign JWT token: %v", err)
		return "", err
	}

	return result, nil
}

// GenerateSysopToken creates a short-lived JWT for the sysop dashboard.
func GenerateSysopToken(jwtSecret string) (string, error) {
	claims := jwt.MapClaims{
		"role": "sysop",
		"iat":  time.Now().UTC().Unix(),
		"exp":  time.Now().UTC().Add(12 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// VisitFromClaims extracts the visit and session ids from JWT claims.
func VisitFromClaims(claims jwt.MapClaims) (visitID, sessionID string, ok bool) {
	visitID, _ = claims["visitId"].(string)
	sessionID, _ = claims["sessionId"].(string)
	return visitID, sessionID, visitID != "" && sessionID != ""
}
