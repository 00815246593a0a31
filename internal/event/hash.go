package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DomainEvent is the domain-separation prefix for event identity hashing.
// Version suffix enables future algorithm migration.
const DomainEvent = "treatyline/event/v1"

// eventIDLen is the truncated hex length of an event ID. 80 bits is plenty
// for dedupe/reference across a multi-year log.
const eventIDLen = 20

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents domain/data
// boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ID computes the content-addressed event ID for a reconciled record.
//
// The hash covers timestamp, processing sequence, action, treaty type, the
// normalized pair, source, source ref, and the intra-timestamp sub-sequence.
// SubSeq is included so the two synthetic halves of an upgrade/downgrade
// expansion (which share every other hashed field except sequence) remain
// distinct even if sequence assignment ever changes.
//
// Deterministic: identical logical events yield identical IDs across runs.
func ID(e *ReconciledEvent) string {
	blob := strings.Join([]string{
		e.Timestamp.UTC().Format(time.RFC3339),
		strconv.FormatInt(e.EventSequence, 10),
		string(e.Action),
		e.TreatyType,
		strconv.FormatInt(e.PairMinID, 10),
		strconv.FormatInt(e.PairMaxID, 10),
		string(e.Source),
		e.SourceRef,
		strconv.Itoa(e.SubSeq),
	}, "|")
	return hashWithDomain(DomainEvent, []byte(blob))[:eventIDLen]
}
