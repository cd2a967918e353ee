package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const magicTokenRawSize = 32

var errMagicTokenSize = errors.New("invalid magic token size")

// NewMagicToken returns an encoded high-entropy token and the hash it is stored under.
func NewMagicToken() (string, [32]byte, error) {
	var raw [magicTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", [32]byte{}, err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), sha256.Sum256(raw[:]), nil
}

// HashMagicToken decodes token and returns its storage hash.
func HashMagicToken(token string) ([32]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return [32]byte{}, err
	}
	if len(raw) != magicTokenRawSize {
		return [32]byte{}, errMagicTokenSize
	}
	return sha256.Sum256(raw), nil
}
