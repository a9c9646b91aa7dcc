package license

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
)

var (
	fingerprintOnce sync.Once
	fingerprint     string
)

// Fingerprint derives a stable identifier for the running host from its
// hostname, outbound IP, primary MAC address, and platform. Computed once
// per process.
func Fingerprint() string {
	fingerprintOnce.Do(func() {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		ip := outboundIP()
		mac := "00:00:00:00:00:00"
		if ifaces, err := net.Interfaces(); err == nil {
			for _, iface := range ifaces {
				if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
					continue
				}
				mac = iface.HardwareAddr.String()
				break
			}
		}
		data := fmt.Sprintf("%s-%s-%s-%s-%s", hostname, ip, mac, runtime.GOOS, runtime.GOARCH)
		sum := sha256.Sum256([]byte(data))
		fingerprint = hex.EncodeToString(sum[:])
	})
	return fingerprint
}

// outboundIP resolves the interface address the host would use to reach
// the internet. UDP dial assigns the local address without sending any
// packet; a host with no route hashes the zero address instead.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "0.0.0.0"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "0.0.0.0"
}

// shortFingerprint renders a log-safe prefix of a fingerprint.
func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
