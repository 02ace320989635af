package webos

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestMagicPacketLayout(t *testing.T) {
	packet, err := MagicPacket("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("MagicPacket failed: %v", err)
	}

	if len(packet) != 102 {
		t.Fatalf("expected 102 bytes, got %d", len(packet))
	}

	if !bytes.Equal(packet[:6], []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Error("packet must start with six 0xFF bytes")
	}

	mac := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	for i := 0; i < 16; i++ {
		start := 6 + i*6
		if !bytes.Equal(packet[start:start+6], mac) {
			t.Fatalf("mac repetition %d is wrong: %x", i, packet[start:start+6])
		}
	}
}

func TestMagicPacketAcceptsHyphens(t *testing.T) {
	colons, err := MagicPacket("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("colon form failed: %v", err)
	}
	hyphens, err := MagicPacket("aa-bb-cc-dd-ee-ff")
	if err != nil {
		t.Fatalf("hyphen form failed: %v", err)
	}
	if !bytes.Equal(colons, hyphens) {
		t.Error("address notation changed the packet")
	}
}

func TestMagicPacketRejectsBadMAC(t *testing.T) {
	tests := []struct {
		name string
		mac  string
	}{
		{"empty", ""},
		{"garbage", "not-a-mac"},
		{"too short", "aa:bb:cc"},
		{"eui-64", "aa:bb:cc:dd:ee:ff:00:11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MagicPacket(tt.mac); err == nil {
				t.Errorf("expected error for %q", tt.mac)
			}
		})
	}
}

func TestUDPWakerSendsPacket(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open listener: %v", err)
	}
	defer conn.Close() //nolint:errcheck // test teardown

	waker := &UDPWaker{BroadcastAddr: conn.LocalAddr().String()}
	if err := waker.Wake("aa:bb:cc:dd:ee:ff"); err != nil {
		t.Fatalf("Wake failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("no packet arrived: %v", err)
	}

	want, _ := MagicPacket("aa:bb:cc:dd:ee:ff")
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("datagram does not match the magic packet (%d bytes)", n)
	}
}

func TestUDPWakerRejectsBadMAC(t *testing.T) {
	waker := &UDPWaker{}
	if err := waker.Wake("nope"); err == nil {
		t.Error("expected error for unparseable mac")
	}
}
