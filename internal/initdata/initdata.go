// Package initdata verifies the signed payload an embedded client shell hands to
// its web view. The payload is a URL-encoded field set; the "hash" field is
// HMAC-SHA256 over the remaining fields, keyed by HMAC-SHA256("WebAppData", botToken).
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const secretKeyLabel = "WebAppData"

var (
	ErrMalformed         = errors.New("init data malformed")
	ErrMissingHash       = errors.New("init data hash missing")
	ErrSignatureMismatch = errors.New("init data signature mismatch")
	ErrExpired           = errors.New("init data expired")
	ErrFromFuture        = errors.New("init data auth_date in the future")
)

// User is the identity asserted by the client shell.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Payload is a verified handshake payload.
type Payload struct {
	User       User
	AuthDate   time.Time
	QueryID    string
	StartParam string
	ChatType   string
}

// Verify checks the signature and freshness of raw. skew bounds how far
// auth_date may lie in the future.
func Verify(raw, botToken string, maxAge, skew time.Duration, now time.Time) (Payload, error) {
	if strings.TrimSpace(raw) == "" || botToken == "" {
		return Payload{}, ErrMalformed
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, v := range values {
		if len(v) != 1 {
			return Payload{}, fmt.Errorf("%w: repeated field", ErrMalformed)
		}
	}

	provided := values.Get("hash")
	if provided == "" {
		return Payload{}, ErrMissingHash
	}
	providedMAC, err := hex.DecodeString(provided)
	if err != nil {
		return Payload{}, ErrSignatureMismatch
	}
	if !hmac.Equal(providedMAC, sign(values, botToken)) {
		return Payload{}, ErrSignatureMismatch
	}

	authUnix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil || authUnix <= 0 {
		return Payload{}, fmt.Errorf("%w: auth_date", ErrMalformed)
	}
	authDate := time.Unix(authUnix, 0)
	if authDate.After(now.Add(skew)) {
		return Payload{}, ErrFromFuture
	}
	if maxAge > 0 && now.Sub(authDate) > maxAge {
		return Payload{}, ErrExpired
	}

	var user User
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return Payload{}, fmt.Errorf("%w: user", ErrMalformed)
	}
	if user.ID == 0 {
		return Payload{}, fmt.Errorf("%w: user id", ErrMalformed)
	}

	return Payload{
		User:       user,
		AuthDate:   authDate,
		QueryID:    values.Get("query_id"),
		StartParam: values.Get("start_param"),
		ChatType:   values.Get("chat_type"),
	}, nil
}

// Sign returns values encoded with a valid hash field. Used by test harnesses and
// local tooling that stand in for the client shell.
func Sign(values url.Values, botToken string) string {
	out := url.Values{}
	for k, v := range values {
		if k == "hash" {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	out.Set("hash", hex.EncodeToString(sign(out, botToken)))
	return out.Encode()
}

// NewValues builds the field set for user at authDate.
func NewValues(user User, authDate time.Time) (url.Values, error) {
	encoded, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("user", string(encoded))
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	return values, nil
}

func sign(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte(secretKeyLabel))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(b.String()))
	return mac.Sum(nil)
}
