package usecase

import (
	"crypto/rand"
	"io"

	"github.com/oklog/ulid/v2"
)

const (
	orderIDPrefix       = "LUA-"
	downloadTokenLength = 32
	tokenAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateOrderID returns a merchant order id: the LUA- prefix followed by a
// ULID (millisecond timestamp plus 80 random bits, Crockford base32).
func GenerateOrderID() string {
	return orderIDPrefix + ulid.Make().String()
}

// GenerateDownloadToken returns 32 characters drawn uniformly from
// [A-Za-z0-9] using the system CSPRNG.
func GenerateDownloadToken() (string, error) {
	return randomToken(rand.Reader, downloadTokenLength)
}

func randomToken(r io.Reader, n int) (string, error) {
	// 248 is the largest multiple of 62 below 256; bytes above it are
	// rejected to keep the distribution uniform.
	const limit = 256 - 256%len(tokenAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
