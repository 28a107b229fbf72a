package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for an algorithm migration without colliding with v1 digests.
const (
	DomainWrap   = "pacledger/wrap/v1"
	DomainBER    = "pacledger/ber/v1"
	DomainPDO    = "pacledger/pdo/v1"
	DomainRecord = "pacledger/record/v1"
	DomainChain  = "pacledger/chain/v1"
)

// GenesisHash is the all-zero sentinel used as the previous-record hash of
// the genesis audit record.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain || 0x00 || data). The null separator prevents
// domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Bind chains a content digest onto a previous digest:
// SHA256(DomainChain || 0x00 || prev || content). Both inputs are fixed-width
// lowercase hex digests, so no further separator is needed between them.
func Bind(prev, content string) string {
	h := sha256.New()
	h.Write([]byte(DomainChain))
	h.Write([]byte{0x00})
	h.Write([]byte(prev))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// IsDigest reports whether s looks like a lowercase hex SHA-256 digest.
func IsDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// contentHash computes the content-addressed digest for an artifact.
// CreatedAt is excluded (see package doc); the hash covers what was
// asserted, by whom, and in response to what.
func contentHash(kind Kind, pacID, parentID, issuer string, payload Object) (string, error) {
	obj := Object{
		"kind":      Text(kind),
		"pac_id":    Text(pacID),
		"parent_id": Text(parentID),
		"issuer":    Text(issuer),
		"payload":   payload,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return HashWithDomain(domainFor(kind), canonical), nil
}

func domainFor(kind Kind) string {
	switch kind {
	case KindWrap:
		return DomainWrap
	case KindBER:
		return DomainBER
	case KindPDO:
		return DomainPDO
	default:
		// Unknown kinds still hash deterministically; validation happens
		// at construction, not here.
		return DomainChain + "/" + strings.ToLower(string(kind))
	}
}
