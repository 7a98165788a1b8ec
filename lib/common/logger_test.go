package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/eKV/lib/codec"
	"github.com/ValentinKolb/eKV/lib/store/cstore"
)

type loggedType struct{ A int }

func TestInitLoggers(t *testing.T) {
	var buf bytes.Buffer
	output = &buf
	t.Cleanup(func() {
		output = os.Stderr
		_ = InitLoggers("warn")
	})

	if err := InitLoggers("debug"); err != nil {
		t.Fatalf("InitLoggers failed: %v", err)
	}
	if err := InitLoggers("verbose"); err == nil {
		t.Errorf("InitLoggers(verbose) succeeded, want error")
	}

	codec.Register(&loggedType{})
	d, err := cstore.Open(filepath.Join(t.TempDir(), "db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// every listed logger is obtained by a package and writes in the common format
	for _, name := range []string{"core", "codec", "maple", "store"} {
		prefix := fmt.Sprintf("| %-8s |", name)
		if !strings.Contains(buf.String(), prefix) {
			t.Errorf("no log line with %q in output:\n%s", prefix, buf.String())
		}
	}
}
