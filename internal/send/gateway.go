// Package send queues outgoing SMS messages into the spool and validates
// signed public send requests.
package send

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sonpython/sms-api/internal/logging"
	"github.com/sonpython/sms-api/internal/spool"
)

var (
	// ErrInvalidHash is returned when the request signature does not match.
	ErrInvalidHash = errors.New("invalid hash")
	// ErrInvalidPhone is returned when phone validation is enabled and the
	// number is not a valid Vietnamese mobile number.
	ErrInvalidPhone = errors.New("invalid phone format")
)

// vnPhonePattern matches local (0xxxxxxxxx) and international (+84xxxxxxxxx)
// Vietnamese mobile numbers.
var vnPhonePattern = regexp.MustCompile(`^(?:0|\+84)\d{9}$`)

// Gateway writes outgoing SMS files and checks request signatures.
type Gateway struct {
	reader        *spool.Reader
	secret        string
	validatePhone bool
}

// NewGateway creates a Gateway. The secret is the shared signing key for
// public send requests; validatePhone enables the VN phone format check.
func NewGateway(reader *spool.Reader, secret string, validatePhone bool) *Gateway {
	return &Gateway{
		reader:        reader,
		secret:        secret,
		validatePhone: validatePhone,
	}
}

// VerifyHash recomputes MD5(phone & message & secret) and compares it
// case-insensitively against the client-supplied hex digest.
func (g *Gateway) VerifyHash(phone, message, clientHash string) error {
	sum := md5.Sum([]byte(phone + "&" + message + "&" + g.secret))
	if !strings.EqualFold(hex.EncodeToString(sum[:]), clientHash) {
		return ErrInvalidHash
	}
	return nil
}

// ValidatePhone checks the phone format when validation is enabled and
// returns the number normalized to local format (+84 prefix becomes 0).
// With validation disabled the number passes through unchanged.
func (g *Gateway) ValidatePhone(phone string) (string, error) {
	if !g.validatePhone {
		return phone, nil
	}
	if !vnPhonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	if rest, ok := strings.CutPrefix(phone, "+84"); ok {
		return "0" + rest, nil
	}
	return phone, nil
}

// CreateOutgoing writes an smstools submission file into the outgoing
// folder and returns its filename. The name is sms_<unixSeconds>_<phone>.sms;
// two sends for the same phone within the same second share a name and the
// later one wins. That window is accepted, not worked around.
func (g *Gateway) CreateOutgoing(phone, message string) (string, error) {
	dir := g.reader.Dir(spool.FolderOutgoing)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create outgoing dir: %w", err)
	}

	filename := fmt.Sprintf("sms_%d_%s.sms", time.Now().Unix(), phone)
	content := "To: " + phone + "\n\n" + message + "\n"
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write outgoing file: %w", err)
	}

	logging.Info("sms queued",
		zap.String("file", filename),
		zap.Int("message_len", len(message)))
	return filename, nil
}
