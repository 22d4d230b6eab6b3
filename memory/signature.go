package memory

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"XivSync/utils"
)

// SignatureType names one of the structures located by signature.
type SignatureType string

const (
	SigTarget     SignatureType = "target"
	SigChatLog    SignatureType = "chatLog"
	SigMobArray   SignatureType = "mobArray"
	SigPartyList  SignatureType = "partyList"
	SigServerTime SignatureType = "serverTime"
	SigZoneID     SignatureType = "zoneID"
	SigPlayer     SignatureType = "player"
)

// RequiredSignatures are the signatures the scan loop reads every tick.
var RequiredSignatures = []SignatureType{SigZoneID, SigServerTime, SigMobArray, SigTarget}

// DefaultSignatures are the patterns for the current game client.
var DefaultSignatures = map[SignatureType]string{
	SigTarget:     "41bc000000e041bd01000000493bc47555488d0d",
	SigChatLog:    "e8????????85c0740e488b0d????????33d2e8????????488b0d",
	SigMobArray:   "488b420848c1e8033da701000077248bc0488d0d",
	SigPartyList:  "488d7c242066660f1f840000000000488b17488d0d",
	SigServerTime: "0fb7c0894710488b0d",
	SigZoneID:     "f30f108d080400004c8d85580600000fb705",
	SigPlayer:     "83f9ff7412448b048e8bd3488d0d",
}

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// Signature is a byte pattern whose wildcard ranges match any byte.
// Wildcard bytes in Bytes are zero.
type Signature struct {
	Bytes     []byte
	Wildcards []Range
}

// ParseSignature parses a hex string in which "??" marks a wildcard byte,
// e.g. "488b0d????????e8". Spaces are ignored.
func ParseSignature(s string) (Signature, error) {
	s = utils.RemoveSpaces(s)
	if len(s) == 0 {
		return Signature{}, fmt.Errorf("empty signature")
	}
	if len(s)%2 != 0 {
		return Signature{}, fmt.Errorf("signature %q has odd length", s)
	}

	sig := Signature{Bytes: make([]byte, len(s)/2)}
	wildStart := -1
	for i := 0; i < len(s); i += 2 {
		pair := s[i : i+2]
		idx := i / 2
		switch {
		case pair == "??":
			if wildStart < 0 {
				wildStart = idx
			}
			continue
		case pair[0] == '?' || pair[1] == '?':
			return Signature{}, fmt.Errorf("malformed wildcard byte %q at offset %d", pair, idx)
		}
		if wildStart >= 0 {
			sig.Wildcards = append(sig.Wildcards, Range{Start: wildStart, End: idx})
			wildStart = -1
		}
		if _, err := hex.Decode(sig.Bytes[idx:idx+1], []byte(pair)); err != nil {
			return Signature{}, fmt.Errorf("invalid hex byte %q at offset %d: %w", pair, idx, err)
		}
	}
	if wildStart >= 0 {
		sig.Wildcards = append(sig.Wildcards, Range{Start: wildStart, End: len(sig.Bytes)})
	}
	return sig, nil
}

func (s Signature) Len() int { return len(s.Bytes) }

func (s Signature) String() string {
	var out []byte
	for i, b := range s.Bytes {
		if s.wild(i) {
			out = append(out, '?', '?')
			continue
		}
		out = hex.AppendEncode(out, []byte{b})
	}
	return string(out)
}

func (s Signature) wild(i int) bool {
	j := sort.Search(len(s.Wildcards), func(k int) bool { return s.Wildcards[k].End > i })
	return j < len(s.Wildcards) && s.Wildcards[j].Contains(i)
}

// Find returns the offset of the leftmost match of needle in haystack, or -1.
// Bytes of needle inside a wildcard range always match. Ranges must be sorted
// and must not overlap.
func Find(haystack, needle []byte, wildcards []Range) int {
	n := len(needle)
	if n == 0 || n > len(haystack) {
		return -1
	}
	if len(wildcards) == 0 {
		return bytes.Index(haystack, needle)
	}

	// Compare only the fixed spans between wildcard ranges.
	type span struct{ start, end int }
	spans := make([]span, 0, len(wildcards)+1)
	pos := 0
	for _, w := range wildcards {
		start, end := min(max(w.Start, 0), n), min(w.End, n)
		if start >= end {
			continue
		}
		if start > pos {
			spans = append(spans, span{pos, start})
		}
		pos = max(pos, end)
	}
	if pos < n {
		spans = append(spans, span{pos, n})
	}

	for i := 0; i <= len(haystack)-n; i++ {
		window := haystack[i : i+n]
		match := true
		for _, sp := range spans {
			if !bytes.Equal(window[sp.start:sp.end], needle[sp.start:sp.end]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// FindSignature is Find with the signature's own wildcard ranges.
func FindSignature(haystack []byte, sig Signature) int {
	return Find(haystack, sig.Bytes, sig.Wildcards)
}
