package httpserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/hostpulse/hostpulse/internal/config"
	"github.com/hostpulse/hostpulse/internal/domain"
)

// UploadSignatureHeader carries the hex HMAC-SHA256 of the binary upload
// body, keyed with the shared secret each polling worker is provisioned
// with.
const UploadSignatureHeader = "X-Upload-Signature"

// Argon2Params defines parameters for Argon2id password hashing
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

var defaultArgon2Params = Argon2Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 2,
	SaltLen:     16,
	KeyLen:      32,
}

// HashSecret creates an Argon2id hash of a shared secret, suitable for the
// OPERATOR_SECRET_HASH setting.
func HashSecret(secret string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen)

	// Format: argon2id$iterations$memory$parallelism$salt$hash (base64 encoded)
	encoded := fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		params.Iterations,
		params.Memory,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// VerifySecret verifies a shared secret against its Argon2id hash.
func VerifySecret(secret, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	iters, err1 := parseUint32(parts[1])
	mem, err2 := parseUint32(parts[2])
	par64, err3 := parseUint32(parts[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	// Clamp parallelism to uint8 range to avoid overflow
	var par uint8
	if par64 > math.MaxUint8 {
		par = math.MaxUint8
	} else {
		par = uint8(par64)
	}
	actualHash := argon2.IDKey([]byte(secret), salt, iters, mem, par, defaultArgon2Params.KeyLen)
	return subtle.ConstantTimeCompare(actualHash, expectedHash) == 1
}

// UploadAuth verifies the HMAC signature on binary worker uploads. The body
// is consumed for verification and restored for the handler. An empty
// secret disables the check for local development.
func UploadAuth(secret string, maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeBare(w, http.StatusRequestEntityTooLarge)
				return
			}
			if secret != "" {
				sig, err := hex.DecodeString(r.Header.Get(UploadSignatureHeader))
				if err != nil || len(sig) == 0 {
					writeBare(w, http.StatusUnauthorized)
					return
				}
				mac := hmac.New(sha256.New, []byte(secret))
				mac.Write(body)
				if !hmac.Equal(sig, mac.Sum(nil)) {
					writeBare(w, http.StatusUnauthorized)
					return
				}
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// SignUpload computes the signature a worker sends for body. Kept here so
// the Go poller and the tests share one definition with the check above.
func SignUpload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// OperatorAuth guards the operator API with a bearer secret. The secret is
// checked against an Argon2id hash when configured, otherwise against the
// plain dev secret. With neither configured every request is refused.
func OperatorAuth(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, ok := bearerToken(r)
			if !ok {
				writeBare(w, http.StatusUnauthorized)
				return
			}
			switch {
			case cfg.OperatorSecretHash != "":
				ok = VerifySecret(secret, cfg.OperatorSecretHash)
			case cfg.OperatorSecret != "":
				ok = subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.OperatorSecret)) == 1
			default:
				ok = false
			}
			if !ok {
				writeBare(w, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CustomerTokens mints and verifies the HMAC-signed bearer tokens the
// customer API uses. A token is "<customer id>.<base64url signature>";
// the billing system mints them out of band with the same secret.
type CustomerTokens struct {
	secret []byte
}

func NewCustomerTokens(secret string) CustomerTokens {
	return CustomerTokens{secret: []byte(secret)}
}

// Mint returns the bearer token for one customer.
func (ct CustomerTokens) Mint(id domain.CustomerID) string {
	payload := strconv.FormatUint(uint64(id), 10)
	mac := hmac.New(sha256.New, ct.secret)
	mac.Write([]byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a token and returns the customer it names.
func (ct CustomerTokens) Verify(token string) (domain.CustomerID, error) {
	payload, sigB64, ok := strings.Cut(token, ".")
	if !ok {
		return 0, fmt.Errorf("op=auth.customer_token: malformed token: %w", domain.ErrUnauthorized)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return 0, fmt.Errorf("op=auth.customer_token: bad signature encoding: %w", domain.ErrUnauthorized)
	}
	mac := hmac.New(sha256.New, ct.secret)
	mac.Write([]byte(payload))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return 0, fmt.Errorf("op=auth.customer_token: signature mismatch: %w", domain.ErrUnauthorized)
	}
	raw, err := strconv.ParseUint(payload, 10, 32)
	if err != nil || raw == 0 {
		return 0, fmt.Errorf("op=auth.customer_token: bad customer id: %w", domain.ErrUnauthorized)
	}
	return domain.CustomerID(raw), nil
}

type customerKey struct{}

// CustomerAuth authenticates customer API requests and stores the caller's
// id on the request context.
func CustomerAuth(tokens CustomerTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeBare(w, http.StatusUnauthorized)
				return
			}
			id, err := tokens.Verify(token)
			if err != nil {
				writeBare(w, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), customerKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CustomerFrom returns the authenticated customer id, if any.
func CustomerFrom(r *http.Request) (domain.CustomerID, bool) {
	id, ok := r.Context().Value(customerKey{}).(domain.CustomerID)
	return id, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(h, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// parseUint32 parses a decimal string into uint32; returns error on failure
func parseUint32(s string) (uint32, error) {
	x, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse")
	}
	return uint32(x), nil
}
