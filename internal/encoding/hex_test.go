package encoding

import (
	"encoding"
	"errors"
	"testing"

	"github.com/rvsim/rvsim/internal/vm"
)

// Assert interface implemented.
var (
	_ encoding.TextMarshaler   = (*HexEncoding)(nil)
	_ encoding.TextUnmarshaler = (*HexEncoding)(nil)
)

type unmarshalTestCase struct {
	name, input string

	expectRegions int
	expectErr     error
}

func TestHexEncoder_UnmarshalText(t *testing.T) {
	t.Parallel()

	tcs := []unmarshalTestCase{
		{
			name:      "empty",
			input:     "",
			expectErr: errEmpty,
		},
		{
			name:      "eof record",
			input:     ":000000000000000000" + "01" + "ff\n",
			expectErr: errEmpty,
		},
		{
			name:      "invalid bytes",
			input:     ":invalid",
			expectErr: errInvalidHex,
		},
		{
			name:      "nonsense",
			input:     "u wot mate",
			expectErr: errInvalidHex,
		},
		{
			name:          "data record",
			input:         roundTripLine(t, 0x2462, []byte("FLUID PROFILE")),
			expectRegions: 1,
		},
		{
			name:          "data records",
			input:         roundTripLine(t, 0x2462, []byte("FLUID")) + roundTripLine(t, 0x3000, []byte("PROFILE")),
			expectRegions: 2,
		},
		{
			name:      "too short",
			input:     ":0",
			expectErr: errInvalidHex,
		},
		{
			name:      "too short",
			input:     ":00",
			expectErr: errInvalidHex,
		},
		{
			name:      "too short",
			input:     ":FF00000000000",
			expectErr: errInvalidHex,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			regions, err := unmarshal(tc.input)

			switch {
			case tc.expectErr != nil && err != nil:
				if !errors.Is(err, tc.expectErr) {
					t.Errorf("unexpected error: got: %s, want: %s", err, tc.expectErr)
				}
			case tc.expectErr != nil && err == nil:
				t.Errorf("expected error: %s", tc.expectErr)
			case tc.expectErr == nil && err != nil:
				t.Errorf("unexpected error: %v", err)
			case len(regions) != tc.expectRegions:
				t.Errorf("unexpected region count: want: %d, got: %d", tc.expectRegions, len(regions))
			}
		})
	}
}

func TestHexEncoder_MarshalText(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()

		enc := NewHexEncoding()

		out, err := enc.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText: %v", err)
		}

		if want := ":000000000000000000" + "01" + "ff\n"; string(out) != want {
			t.Errorf("got: %q, want: %q", out, want)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		region := Region{Addr: vm.Word(0x2462), Data: []byte("FLUID PROFILE!!!")}
		enc := NewHexEncoding(region)

		out, err := enc.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText: %v", err)
		}

		decoded := &HexEncoding{}
		if err := decoded.UnmarshalText(out); err != nil {
			t.Fatalf("UnmarshalText: %v", err)
		}

		got := decoded.Regions()
		if len(got) != 1 {
			t.Fatalf("got %d regions, want 1", len(got))
		}

		if got[0].Addr != region.Addr {
			t.Errorf("Addr = %s, want %s", got[0].Addr, region.Addr)
		}

		if string(got[0].Data) != string(region.Data) {
			t.Errorf("Data = %q, want %q", got[0].Data, region.Data)
		}
	})
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	mem := vm.NewMemory()

	const base = vm.Word(0x1000)
	mem.MapPages(base, 4096, vm.AttrRead|vm.AttrWrite)

	want := make([]byte, 100)
	for i := range want {
		want[i] = byte(i)
	}

	if err := mem.WriteBytes(base, want); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}

	snap := Snapshot(mem, base, len(want))

	text, err := snap.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	restoreMem := vm.NewMemory()
	restoreMem.MapPages(base, 4096, vm.AttrRead|vm.AttrWrite)

	decoded := &HexEncoding{}
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}

	if err := decoded.Restore(restoreMem); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got := restoreMem.View(base, len(want))
	if string(got) != string(want) {
		t.Errorf("restored data = %x, want %x", got, want)
	}
}

func unmarshal(input string) ([]Region, error) {
	decoder := &HexEncoding{}
	err := decoder.UnmarshalText([]byte(input))

	return decoder.Regions(), err
}

// roundTripLine returns just the data-record line for one region, dropping the trailing EOF
// record MarshalText always appends, so test cases can compose several data lines with their
// own single EOF record.
func roundTripLine(t *testing.T, addr vm.Word, data []byte) string {
	t.Helper()

	enc := NewHexEncoding(Region{Addr: addr, Data: data})

	out, err := enc.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	return firstLine(string(out))
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i+1]
		}
	}

	return s
}
