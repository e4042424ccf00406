package vm

import "testing"

func TestSext(t *testing.T) {
	tests := []struct {
		name string
		in   uint64
		bits uint
		want int64
	}{
		{"12-bit negative", 0xfff, 12, -1},
		{"12-bit positive", 0x7ff, 12, 0x7ff},
		{"20-bit negative", 0x80000, 20, -524288},
		{"no-op at 64", 0xdead, 64, 0xdead},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := int64(Sext(tc.in, tc.bits)); got != tc.want {
				t.Errorf("Sext(%#x, %d) = %d, want %d", tc.in, tc.bits, got, tc.want)
			}
		})
	}
}

func TestSext32(t *testing.T) {
	if got := int64(Sext32(0xffffffff)); got != -1 {
		t.Errorf("Sext32(0xffffffff) = %d, want -1", got)
	}

	if got := int64(Sext32(0x7fffffff)); got != 0x7fffffff {
		t.Errorf("Sext32(0x7fffffff) = %d, want 0x7fffffff", got)
	}
}

func TestWordTrunc(t *testing.T) {
	w := Word(0xffffffff_80000000)

	if got := w.Trunc(XLen64); got != w {
		t.Errorf("Trunc(64) changed value: got %s", got)
	}

	if got := w.Trunc(XLen32); got != Word(0x80000000) {
		t.Errorf("Trunc(32) = %s, want 0x80000000", got)
	}
}

func TestRegABI(t *testing.T) {
	if got := Reg(10).ABI(); got != "a0" {
		t.Errorf("Reg(10).ABI() = %q, want a0", got)
	}

	if got := Reg(2).ABI(); got != "sp" {
		t.Errorf("Reg(2).ABI() = %q, want sp", got)
	}
}
