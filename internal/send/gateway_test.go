package send

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sonpython/sms-api/internal/spool"
)

const testSecret = "test_secret"

func newTestGateway(t *testing.T, validatePhone bool) *Gateway {
	t.Helper()
	return NewGateway(spool.NewReader(t.TempDir()), testSecret, validatePhone)
}

func signRequest(phone, message string) string {
	sum := md5.Sum([]byte(phone + "&" + message + "&" + testSecret))
	return hex.EncodeToString(sum[:])
}

func TestVerifyHash(t *testing.T) {
	g := newTestGateway(t, false)
	phone, message := "0901234567", "hello"

	if err := g.VerifyHash(phone, message, signRequest(phone, message)); err != nil {
		t.Errorf("valid hash rejected: %v", err)
	}
	if err := g.VerifyHash(phone, message, "deadbeef"); err != ErrInvalidHash {
		t.Errorf("err = %v, want ErrInvalidHash", err)
	}
	if err := g.VerifyHash(phone, "tampered", signRequest(phone, message)); err != ErrInvalidHash {
		t.Errorf("tampered message accepted")
	}
}

func TestVerifyHashCaseInsensitive(t *testing.T) {
	g := newTestGateway(t, false)
	phone, message := "0901234567", "hello"

	upper := strings.ToUpper(signRequest(phone, message))
	if err := g.VerifyHash(phone, message, upper); err != nil {
		t.Errorf("uppercase digest rejected: %v", err)
	}
}

func TestValidatePhoneDisabled(t *testing.T) {
	g := newTestGateway(t, false)
	got, err := g.ValidatePhone("not-a-phone")
	if err != nil || got != "not-a-phone" {
		t.Errorf("disabled validation should pass through, got %q, %v", got, err)
	}
}

func TestValidatePhoneEnabled(t *testing.T) {
	g := newTestGateway(t, true)

	tests := []struct {
		in   string
		out  string
		fail bool
	}{
		{in: "0901234567", out: "0901234567"},
		{in: "+84901234567", out: "0901234567"},
		{in: "84901234567", fail: true},
		{in: "090123456", fail: true},
		{in: "09012345678", fail: true},
		{in: "abc", fail: true},
		{in: "", fail: true},
	}
	for _, tt := range tests {
		got, err := g.ValidatePhone(tt.in)
		if tt.fail {
			if err != ErrInvalidPhone {
				t.Errorf("ValidatePhone(%q) err = %v, want ErrInvalidPhone", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.out {
			t.Errorf("ValidatePhone(%q) = %q, %v, want %q", tt.in, got, err, tt.out)
		}
	}
}

func TestCreateOutgoing(t *testing.T) {
	g := newTestGateway(t, false)

	file, err := g.CreateOutgoing("0901234567", "hello world")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(file, "sms_") || !strings.HasSuffix(file, "_0901234567.sms") {
		t.Errorf("filename = %q", file)
	}

	raw, err := os.ReadFile(filepath.Join(g.reader.Dir(spool.FolderOutgoing), file))
	if err != nil {
		t.Fatal(err)
	}
	want := "To: 0901234567\n\nhello world\n"
	if string(raw) != want {
		t.Errorf("content = %q, want %q", raw, want)
	}
}

func TestCreateOutgoingMakesFolder(t *testing.T) {
	g := newTestGateway(t, false)
	// The spool root exists but the outgoing subdirectory does not yet.
	if _, err := os.Stat(g.reader.Dir(spool.FolderOutgoing)); !os.IsNotExist(err) {
		t.Fatal("outgoing dir should not exist before first send")
	}
	if _, err := g.CreateOutgoing("0901234567", "msg"); err != nil {
		t.Fatal(err)
	}
}
