//go:build linux

package i2c

import (
	"os"
	"strings"
	"testing"
)

func devNullBus(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return &Bus{f: f, path: "/dev/null"}
}

func TestTransfer_RejectsBadAddress(t *testing.T) {
	b := devNullBus(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).WriteReg(0x02, 0x01)
		if err == nil || !strings.Contains(err.Error(), "invalid i2c addr") {
			t.Fatalf("addr=0x%X err=%v want invalid i2c addr", addr, err)
		}
	}
}

func TestTransfer_EmptyIsNoop(t *testing.T) {
	d := devNullBus(t).Dev(0x20)
	if err := d.transfer(nil, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestNilHandles(t *testing.T) {
	var b *Bus
	if b.Dev(0x20) != nil {
		t.Fatalf("nil bus should give nil dev")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close on nil bus: %v", err)
	}
	var d *Dev
	if err := d.WriteRegs(0x02, 0, 0); err == nil {
		t.Fatalf("expected error on nil dev")
	}
}

func TestOpen_Missing(t *testing.T) {
	if _, err := Open("/dev/does-not-exist-i2c-99"); err == nil {
		t.Fatalf("expected open error")
	}
}
