package utils

import (
	"errors"
	"time"

	"campusguard/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type JWTClaims struct {
	UserID primitive.ObjectID `json:"user_id"`
	Role   models.Role        `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(userID primitive.ObjectID, role models.Role, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    AppName,
			Subject:   userID.Hex(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

func ValidateToken(tokenString, secretKey string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New(ErrInvalidToken)
	}

	if !claims.Role.Valid() {
		return nil, errors.New("token carries an unknown role")
	}

	if claims.UserID.IsZero() {
		return nil, errors.New("token carries no user id")
	}

	return claims, nil
}
