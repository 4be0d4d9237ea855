package jwt

import (
	"crypto/rsa"
	"fmt"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// JSONWebToken signs and verifies RS256 tokens. The private key is optional:
// services that only verify tokens issued by the account service run with the
// public key alone.
type JSONWebToken struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

func NewJSONWebToken(privateKeyPEM, publicKeyPEM []byte) (*JSONWebToken, error) {
	publicKey, err := gojwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	j := &JSONWebToken{publicKey: publicKey}

	if len(privateKeyPEM) > 0 {
		privateKey, err := gojwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		j.privateKey = privateKey
	}

	return j, nil
}

func (j *JSONWebToken) Sign(claims gojwt.Claims) (string, error) {
	if j.privateKey == nil {
		return "", fmt.Errorf("no private key configured")
	}

	return gojwt.NewWithClaims(gojwt.SigningMethodRS256, claims).SignedString(j.privateKey)
}

func (j *JSONWebToken) Parse(tokenString string, claims gojwt.Claims) error {
	_, err := gojwt.ParseWithClaims(tokenString, claims, func(t *gojwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.publicKey, nil
	})

	return err
}
