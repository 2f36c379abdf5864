package notification

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
)

// Sign - base64(HMAC-SHA1(secretKey, notificationURL + rawBody))
func Sign(rawBody []byte, notificationURL string, secretKey []byte) string {
	mac := hmac.New(sha1.New, secretKey)
	mac.Write([]byte(notificationURL))
	mac.Write(rawBody)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify сравнивает подпись за постоянное время.
// Любые пустые входные данные - отказ
func Verify(rawBody []byte, signature string, notificationURL string, secretKey []byte) bool {
	if len(rawBody) == 0 || signature == "" || notificationURL == "" || len(secretKey) == 0 {
		return false
	}
	expected := Sign(rawBody, notificationURL, secretKey)
	return hmac.Equal([]byte(expected), []byte(signature))
}
