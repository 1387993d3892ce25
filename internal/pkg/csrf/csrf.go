package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const DefaultWindow = 24 * time.Hour

var ErrGenerate = errors.New("csrf token generation failed")

// Guard issues and checks anti-forgery tokens for the double-submit
// cookie pattern. A token is `value.timestamp.signature` where signature
// is HMAC-SHA256 over `value.timestamp` under a dedicated secret.
type Guard struct {
	secret []byte
	window time.Duration
}

// Result distinguishes a stale-but-authentic token from a forged one.
// Valid means the signature checks out; Expired means the timestamp is
// older than the window. Both can be true at once.
type Result struct {
	Valid   bool
	Expired bool
}

func New(secret string, window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{secret: []byte(secret), window: window}
}

func (g *Guard) Window() time.Duration { return g.window }

// Generate mints a fresh token: 32 random bytes hex-encoded, the current
// unix-millisecond timestamp, and the signature over both.
func (g *Guard) Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", ErrGenerate
	}
	value := hex.EncodeToString(buf)
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return value + "." + ts + "." + g.sign(value, ts), nil
}

// Verify checks a serialized token. Signature comparison is constant
// time; any structural defect yields {Valid: false}.
func (g *Guard) Verify(tok string) Result {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return Result{}
	}
	value, ts, sig := parts[0], parts[1], parts[2]
	if value == "" || ts == "" || sig == "" {
		return Result{}
	}

	expected := g.sign(value, ts)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return Result{}
	}

	issuedMs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Result{}
	}
	age := time.Since(time.UnixMilli(issuedMs))
	return Result{Valid: true, Expired: age > g.window}
}

func (g *Guard) sign(value, ts string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(value + "." + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
