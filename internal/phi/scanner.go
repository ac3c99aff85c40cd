// Package phi guards the trust boundary: it decides whether content may
// leave for an external provider (outbound) or return to the caller
// (inbound) under the active governance mode.
//
// Detection itself is a collaborator (contracts.PhiScanner). The package
// ships CommunityScanner, a regex-based implementation covering the common
// identifier classes; deployments with a dedicated detection service
// inject their own scanner.
package phi

import (
	"context"
	"regexp"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// ── Community Scanner ───────────────────────────────────────

type phiPattern struct {
	kind       string
	confidence float64
	re         *regexp.Regexp
}

// builtInPatterns covers the identifier classes the platform most often
// sees in drafting input. Order is reporting order, not priority.
var builtInPatterns = []phiPattern{
	{"mrn", 0.9, regexp.MustCompile(`\bMRN[:#]?\s*\d{6,10}\b`)},
	{"ssn", 0.95, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"email", 0.9, regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"phone", 0.7, regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]?\d{4}`)},
	{"date_of_birth", 0.8, regexp.MustCompile(`(?i)\b(?:DOB|date of birth)[:\s]+\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)},
	{"patient_name", 0.6, regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr)\.\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`)},
}

// CommunityScanner is the built-in regex PHI detector. It reports only
// span positions and types; matched text never leaves the scanner.
type CommunityScanner struct{}

// NewCommunityScanner creates the built-in scanner.
func NewCommunityScanner() *CommunityScanner {
	return &CommunityScanner{}
}

// Scan returns index/confidence-only findings for every pattern match.
func (s *CommunityScanner) Scan(ctx context.Context, text string) ([]models.PhiFinding, error) {
	var findings []models.PhiFinding
	for _, p := range builtInPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			findings = append(findings, models.PhiFinding{
				Type:       p.kind,
				StartIndex: loc[0],
				EndIndex:   loc[1],
				Confidence: p.confidence,
			})
		}
	}
	return findings, nil
}

// HasPhi reports whether any pattern matches, without building findings.
func (s *CommunityScanner) HasPhi(ctx context.Context, text string) (bool, error) {
	for _, p := range builtInPatterns {
		if p.re.MatchString(text) {
			return true, nil
		}
	}
	return false, nil
}
