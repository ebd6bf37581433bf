package lineage

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/hpungsan/vouch/internal/candidate"
)

// Policy holds the confidence constants assigned per match method.
// The values are configuration, not code: callers build a Policy from
// their Config so deployments can tune the tiers.
type Policy struct {
	// ExactConfidence for a single verbatim occurrence
	ExactConfidence float64

	// AmbiguousConfidence for multiple verbatim occurrences
	AmbiguousConfidence float64

	// NormalizedConfidence for a match found only after whitespace normalization
	NormalizedConfidence float64
}

// DefaultPolicy returns the reference confidence tiers.
func DefaultPolicy() Policy {
	return Policy{
		ExactConfidence:      1.0,
		AmbiguousConfidence:  0.7,
		NormalizedConfidence: 0.85,
	}
}

// Result is the outcome of verifying one evidence quote against one snapshot.
type Result struct {
	// Verified reports whether the evidence was found
	Verified bool `json:"verified"`

	// Confidence is the method-based confidence in [0,1]
	Confidence float64 `json:"confidence"`

	// Method is how the evidence was (or wasn't) matched
	Method candidate.Method `json:"method"`

	// Offset is the byte offset of the first verbatim occurrence, or nil.
	// Normalized matches have no recoverable byte offset.
	Offset *int `json:"offset"`

	// Length is the evidence length in bytes
	Length int `json:"length"`

	// Occurrences counts all byte offsets where the evidence occurs,
	// including self-overlapping ones
	Occurrences int `json:"occurrences"`

	// Checksum is "sha256:<hex>" of the evidence bytes; empty for blank evidence
	Checksum string `json:"checksum"`

	// Normalizations lists the normalization steps that enabled a
	// normalized match (empty otherwise)
	Normalizations []string `json:"normalizations,omitempty"`
}

// Verify proves whether evidence occurs in the snapshot content.
//
// It is pure and deterministic: the same snapshot and evidence always
// produce the same result, with no I/O. Both sides are treated as UTF-8
// bytes (Go string bytes), which keeps offsets and checksums reproducible
// across processes.
//
// Match tiers:
//   - exactly one verbatim occurrence  -> exact, ExactConfidence
//   - multiple verbatim occurrences    -> exact, AmbiguousConfidence
//     (present but ambiguous; offset is the first occurrence)
//   - match after whitespace/line-ending normalization -> normalized,
//     NormalizedConfidence, no offset
//   - otherwise -> not_found, 0.0
func Verify(snapshotContent, evidenceText string, policy Policy) Result {
	// Blank evidence can never be verified
	if strings.TrimSpace(evidenceText) == "" {
		return Result{
			Verified:   false,
			Confidence: 0.0,
			Method:     candidate.MethodNotFound,
			Length:     len(evidenceText),
		}
	}

	result := Result{
		Checksum: Checksum(evidenceText),
		Length:   len(evidenceText),
	}

	// Exact byte search over all offsets, overlapping included: evidence
	// like "ab ab" occurring at offsets 0 and 3 of "ab ab ab" is ambiguous
	// even though the two matches share bytes.
	if offsets := findOccurrences(snapshotContent, evidenceText); len(offsets) > 0 {
		offset := offsets[0]
		result.Verified = true
		result.Method = candidate.MethodExact
		result.Offset = &offset
		result.Occurrences = len(offsets)
		if len(offsets) == 1 {
			result.Confidence = policy.ExactConfidence
		} else {
			result.Confidence = policy.AmbiguousConfidence
		}
		return result
	}

	// Normalized search: formatting-level only, never semantic
	normSnapshot, snapshotSteps := normalizeText(snapshotContent)
	normEvidence, evidenceSteps := normalizeText(evidenceText)
	if normEvidence != "" && strings.Contains(normSnapshot, normEvidence) {
		result.Verified = true
		result.Method = candidate.MethodNormalized
		result.Confidence = policy.NormalizedConfidence
		result.Occurrences = len(findOccurrences(normSnapshot, normEvidence))
		result.Normalizations = mergeSteps(snapshotSteps, evidenceSteps)
		return result
	}

	result.Verified = false
	result.Confidence = 0.0
	result.Method = candidate.MethodNotFound
	return result
}

// findOccurrences returns every byte offset where needle occurs in content,
// advancing one byte past each match start so overlapping occurrences count.
func findOccurrences(content, needle string) []int {
	var offsets []int
	from := 0
	for {
		i := strings.Index(content[from:], needle)
		if i < 0 {
			return offsets
		}
		offsets = append(offsets, from+i)
		from += i + 1
	}
}

// Checksum returns "sha256:<hex>" of the text's UTF-8 bytes. The algorithm
// prefix keeps stored checksums self-describing if the digest ever changes.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// whitespaceRun matches one or more whitespace characters (including \n).
var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalization step names recorded on normalized matches.
const (
	NormLineEndings        = "line_endings"
	NormCollapseWhitespace = "collapse_whitespace"
	NormTrim               = "trim"
)

// normalizeText applies the three formatting-level normalizations and
// reports which of them changed the input:
//  1. unify line endings (\r\n and \r become \n)
//  2. collapse whitespace runs to a single space
//  3. trim leading/trailing whitespace
func normalizeText(s string) (string, []string) {
	var steps []string

	unified := strings.ReplaceAll(s, "\r\n", "\n")
	unified = strings.ReplaceAll(unified, "\r", "\n")
	if unified != s {
		steps = append(steps, NormLineEndings)
	}

	collapsed := whitespaceRun.ReplaceAllString(unified, " ")
	if collapsed != unified {
		steps = append(steps, NormCollapseWhitespace)
	}

	trimmed := strings.TrimSpace(collapsed)
	if trimmed != collapsed {
		steps = append(steps, NormTrim)
	}

	return trimmed, steps
}

// mergeSteps unions two step lists preserving the canonical step order.
func mergeSteps(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		seen[s] = true
	}

	ordered := []string{NormLineEndings, NormCollapseWhitespace, NormTrim}
	merged := make([]string, 0, len(seen))
	for _, s := range ordered {
		if seen[s] {
			merged = append(merged, s)
		}
	}
	return merged
}
