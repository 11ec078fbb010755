package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// JwtCustomClaim identifies the actor of a request. Tokens are issued by the
// identity service; this backend only validates them.
type JwtCustomClaim struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	BranchId    int      `json:"branch_id"`
	Permissions []string `json:"permissions"`
	jwt.StandardClaims
}

func getJwtSecret() []byte {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return []byte("pos-ledger-secret")
	}
	return []byte(secret)
}

// JwtGenerate signs a token for the given actor. Used by dev tooling and tests.
func JwtGenerate(claim JwtCustomClaim) (string, error) {
	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || tokenLifespan <= 0 {
		tokenLifespan = 12
	}

	claim.StandardClaims = jwt.StandardClaims{
		ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespan)).Unix(),
		IssuedAt:  time.Now().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &claim)

	token, err := t.SignedString(getJwtSecret())
	if err != nil {
		return "", err
	}

	return token, nil
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return getJwtSecret(), nil
	})
}
