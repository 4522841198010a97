package votes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// Fingerprint derives a stable device hash from the host ID and time zone.
// When the host ID is unavailable it returns "fallback-<unix ms>".
func Fingerprint(ctx context.Context) string {
	id, err := host.HostIDWithContext(ctx)
	if err != nil || id == "" {
		return fmt.Sprintf("fallback-%d", time.Now().UnixMilli())
	}
	return fingerprintOf(id, timeZone())
}

func fingerprintOf(hostID, zone string) string {
	sum := sha256.Sum256([]byte(hostID + "::" + zone))
	return hex.EncodeToString(sum[:])
}

func timeZone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return tz
	}
	if name := time.Local.String(); name != "Local" {
		return name
	}
	zone, _ := time.Now().Zone()
	return zone
}
