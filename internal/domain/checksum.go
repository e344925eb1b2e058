package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/storesync/storesync/pkg/errors"
)

// Checksum computes the integrity hash of a payload's records. The hash
// covers entity id, operation, data and modification time of every record in
// order, so any tampering or truncation in transit is detectable.
func Checksum(p *SyncPayload) string {
	h := sha256.New()
	for _, rec := range p.Records {
		h.Write([]byte(rec.EntityID))
		h.Write([]byte{0})
		h.Write([]byte(rec.Operation))
		h.Write([]byte{0})
		h.Write(rec.Data)
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(rec.LastModified.UnixNano(), 10)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SealChecksum stamps the payload with its checksum.
func SealChecksum(p *SyncPayload) {
	p.Checksum = Checksum(p)
}

// VerifyChecksum returns ErrChecksumMismatch when the payload's recorded
// checksum does not match its records.
func VerifyChecksum(p *SyncPayload) error {
	if got := Checksum(p); got != p.Checksum {
		return errors.Wrap(ErrChecksumMismatch, "expected %s, got %s", p.Checksum, got)
	}
	return nil
}
