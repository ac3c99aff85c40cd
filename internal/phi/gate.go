package phi

import (
	"context"
	"fmt"
	"sort"

	"github.com/medquill/medquill/pipeline/pkg/contracts"
	"github.com/medquill/medquill/pipeline/pkg/models"
	"github.com/rs/zerolog/log"
)

// Gate evaluates content crossing the trust boundary. Stateless; one Gate
// serves all concurrent requests.
type Gate struct {
	scanner contracts.PhiScanner
}

// NewGate creates a PHI gate backed by the given scanner.
func NewGate(scanner contracts.PhiScanner) *Gate {
	return &Gate{scanner: scanner}
}

// Evaluate scans the content and applies the decision policy for the given
// direction and governance mode.
//
// Outbound content is blocked whenever any finding exists, unless the mode
// explicitly permits identified egress. Inbound findings are always allowed
// through but flagged for the caller's own redaction step. If the scanner
// cannot be reached the gate fails closed: outbound is blocked and a
// ScannerUnavailableError is returned.
func (g *Gate) Evaluate(ctx context.Context, content string, direction models.GateDirection, mode models.GovernanceMode) (models.PhiDecision, error) {
	findings, err := g.scanner.Scan(ctx, content)
	if err != nil {
		if direction == models.DirectionOutbound {
			log.Error().Err(err).Msg("PHI scanner unreachable, failing closed")
			return models.PhiDecision{
				Allowed:   false,
				Direction: direction,
				Reason:    "phi scanner unavailable",
			}, &models.ScannerUnavailableError{Err: err}
		}
		// Inbound content never leaves the trust boundary, so a scanner
		// outage only costs the redaction flag.
		log.Warn().Err(err).Msg("PHI scanner unreachable for inbound content")
		return models.PhiDecision{Allowed: true, Direction: direction}, nil
	}

	decision := models.PhiDecision{
		Allowed:      true,
		Direction:    direction,
		FindingCount: len(findings),
		FindingTypes: findingTypes(findings),
	}

	if len(findings) == 0 {
		return decision, nil
	}

	switch direction {
	case models.DirectionInbound:
		decision.Flagged = true
		return decision, nil

	case models.DirectionOutbound:
		if permitsIdentifiedEgress(mode) {
			decision.Flagged = true
			log.Warn().
				Int("findings", len(findings)).
				Str("mode", string(mode)).
				Msg("Identified content permitted outbound by governance mode")
			return decision, nil
		}

		decision.Allowed = false
		decision.Reason = fmt.Sprintf("%d sensitive finding(s) blocked under %s governance", len(findings), mode)
		return decision, nil

	default:
		decision.Allowed = false
		decision.Reason = "unknown gate direction"
		return decision, nil
	}
}

// permitsIdentifiedEgress reports whether the governance mode allows
// identified data to leave for an external provider. Production never
// permits it; demo runs on synthetic data so egress is allowed;
// identified mode permits egress to the approved provider class.
func permitsIdentifiedEgress(mode models.GovernanceMode) bool {
	switch mode {
	case models.GovernanceDemo, models.GovernanceIdentified:
		return true
	default:
		return false
	}
}

// findingTypes returns the sorted, de-duplicated finding type names.
func findingTypes(findings []models.PhiFinding) []string {
	if len(findings) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var types []string
	for _, f := range findings {
		if _, ok := seen[f.Type]; !ok {
			seen[f.Type] = struct{}{}
			types = append(types, f.Type)
		}
	}
	sort.Strings(types)
	return types
}
