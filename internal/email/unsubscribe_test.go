package email

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsubscribeToken_Format(t *testing.T) {
	userID := uuid.MustParse("6f1c1d5e-9a43-4c8e-8d0b-2b7f6d1e4a10")

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("6f1c1d5e-9a43-4c8e-8d0b-2b7f6d1e4a10:summary"))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, UnsubscribeToken("secret", userID, "summary"))
}

func TestVerifyUnsubscribeToken(t *testing.T) {
	userID := uuid.New()
	token := UnsubscribeToken("secret", userID, "reminder")

	tests := []struct {
		name   string
		secret string
		user   uuid.UUID
		typ    string
		token  string
		want   bool
	}{
		{"valid", "secret", userID, "reminder", token, true},
		{"wrong type", "secret", userID, "summary", token, false},
		{"wrong user", "secret", uuid.New(), "reminder", token, false},
		{"wrong secret", "other", userID, "reminder", token, false},
		{"tampered", "secret", userID, "reminder", token[:len(token)-1] + "A", false},
		{"empty", "secret", userID, "reminder", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyUnsubscribeToken(tt.secret, tt.user, tt.typ, tt.token))
		})
	}
}

func TestUnsubscribeURL(t *testing.T) {
	userID := uuid.New()
	raw := UnsubscribeURL("https://birthdays.example.com", "secret", userID, "submission")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/unsubscribe", u.Path)
	assert.Equal(t, userID.String(), u.Query().Get("user"))
	assert.Equal(t, "submission", u.Query().Get("type"))
	assert.True(t, VerifyUnsubscribeToken("secret", userID, "submission", u.Query().Get("token")))
}
