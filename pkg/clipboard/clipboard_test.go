package clipboard

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	atotto "github.com/atotto/clipboard"
)

func TestWriteUnavailable(t *testing.T) {
	if !atotto.Unsupported {
		t.Skip("system clipboard present")
	}
	if err := Write("hello"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestWriteOSC52(t *testing.T) {
	var buf strings.Builder
	if err := WriteOSC52(&buf, "hello"); err != nil {
		t.Fatalf("WriteOSC52: %v", err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, "\x1b]52;c;") {
		t.Errorf("expected OSC52 prefix, got %q", got)
	}
	b64 := base64.StdEncoding.EncodeToString([]byte("hello"))
	if !strings.Contains(got, b64) {
		t.Errorf("expected base64 payload %q in %q", b64, got)
	}
}
