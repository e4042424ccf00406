// Package console_test tries to test terminals.
//
// TestNewRequiresTTY passes nil files, which are never a terminal, so it checks that New fails
// with ErrNoTTY; it skips only if New unexpectedly succeeds.
package console_test

import (
	"errors"
	"testing"

	"github.com/rvsim/rvsim/cmd/internal/console"
)

func TestNewRequiresTTY(t *testing.T) {
	c, err := console.New(nil, nil)
	if err == nil {
		t.Skip("console.New(nil, nil) unexpectedly succeeded")
	}

	if !errors.Is(err, console.ErrNoTTY) {
		t.Errorf("err = %v, want errors.Is(err, ErrNoTTY)", err)
	}

	if c != nil {
		t.Errorf("c = %v, want nil on error", c)
	}
}

func TestGetRandom(t *testing.T) {
	buf := make([]byte, 16)

	n, err := console.GetRandom(buf)
	if err != nil {
		t.Fatalf("GetRandom: %v", err)
	}

	if n != len(buf) {
		t.Errorf("GetRandom read %d bytes, want %d", n, len(buf))
	}
}

func TestRandReaderImplementsIOReader(t *testing.T) {
	buf := make([]byte, 16)

	n, err := console.Rand.Read(buf)
	if err != nil {
		t.Fatalf("Rand.Read: %v", err)
	}

	if n != len(buf) {
		t.Errorf("Rand.Read returned %d, want %d", n, len(buf))
	}
}
