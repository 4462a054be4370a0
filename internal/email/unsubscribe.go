package email

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"

	"github.com/google/uuid"
)

// ErrInvalidUnsubscribeToken is returned when an unsubscribe token does not verify.
var ErrInvalidUnsubscribeToken = errors.New("invalid unsubscribe token")

// UnsubscribeToken signs "{userID}:{type}" with HMAC-SHA256 and encodes it base64url.
func UnsubscribeToken(secret string, userID uuid.UUID, notificationType string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID.String() + ":" + notificationType))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyUnsubscribeToken compares token against the expected signature in constant time.
func VerifyUnsubscribeToken(secret string, userID uuid.UUID, notificationType, token string) bool {
	expected := UnsubscribeToken(secret, userID, notificationType)
	return hmac.Equal([]byte(expected), []byte(token))
}

// UnsubscribeURL builds the one-click unsubscribe link for a notification type.
func UnsubscribeURL(baseURL, secret string, userID uuid.UUID, notificationType string) string {
	q := url.Values{}
	q.Set("user", userID.String())
	q.Set("type", notificationType)
	q.Set("token", UnsubscribeToken(secret, userID, notificationType))
	return baseURL + "/unsubscribe?" + q.Encode()
}
