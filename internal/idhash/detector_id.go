package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// FingerprintLen is the number of hex characters kept from the hash.
const FingerprintLen = 12

// ComputeDetectorID computes the provenance tag stored in detected_by.
// Formula: name@hex(SHA256(window|gap|min_victim))[:12]
// Two runs with the same name and parameters produce the same tag.
func ComputeDetectorID(
	name string,
	windowSize int64,
	maxBlockGap int64,
	minVictimBaseRaw *big.Int,
) string {
	minVictim := "0"
	if minVictimBaseRaw != nil {
		minVictim = minVictimBaseRaw.String()
	}

	data := fmt.Sprintf("window=%d|gap=%d|min_victim=%s",
		windowSize,
		maxBlockGap,
		minVictim,
	)

	hash := sha256.Sum256([]byte(data))
	return name + "@" + hex.EncodeToString(hash[:])[:FingerprintLen]
}
