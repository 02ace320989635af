package webos

import (
	"fmt"
	"net"
)

// DefaultBroadcastAddr is where magic packets go when no broadcast
// address is configured. Port 9 is the discard port, the conventional
// wake-on-LAN target.
const DefaultBroadcastAddr = "255.255.255.255:9"

// Waker sends wake-on-LAN packets. The interface exists so adapter
// tests can observe power-on attempts without broadcasting on the
// test host's network.
type Waker interface {
	Wake(mac string) error
}

// UDPWaker broadcasts magic packets over UDP.
type UDPWaker struct {
	// BroadcastAddr overrides DefaultBroadcastAddr, useful on hosts
	// with several interfaces where the venue subnet's directed
	// broadcast address is known.
	BroadcastAddr string
}

var _ Waker = (*UDPWaker)(nil)

// Wake broadcasts a magic packet for the given MAC address.
//
// Delivery is fire-and-forget: a nil return means the datagram left
// this host, not that the TV woke up.
func (w *UDPWaker) Wake(mac string) error {
	packet, err := MagicPacket(mac)
	if err != nil {
		return err
	}

	addr := w.BroadcastAddr
	if addr == "" {
		addr = DefaultBroadcastAddr
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("wake-on-lan: %w", err)
	}
	defer conn.Close() //nolint:errcheck // nothing to do about a close error on a datagram socket

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("wake-on-lan: %w", err)
	}
	return nil
}

// MagicPacket builds the 102-byte wake-on-LAN frame: six 0xFF bytes
// followed by the target MAC repeated sixteen times.
//
// Parameters:
//   - mac: Hardware address in any form net.ParseMAC accepts
//
// Returns:
//   - []byte: The frame, ready to broadcast
//   - error: If the MAC does not parse or is not 48-bit
func MagicPacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("wake-on-lan: %w", err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("wake-on-lan: need a 48-bit mac, got %q", mac)
	}

	packet := make([]byte, 0, 6+16*6)
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, hw...)
	}
	return packet, nil
}
