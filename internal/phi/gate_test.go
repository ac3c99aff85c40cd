package phi

import (
	"context"
	"errors"
	"testing"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// stubScanner returns canned findings or a canned error.
type stubScanner struct {
	findings []models.PhiFinding
	err      error
}

func (s *stubScanner) Scan(ctx context.Context, text string) ([]models.PhiFinding, error) {
	return s.findings, s.err
}

func (s *stubScanner) HasPhi(ctx context.Context, text string) (bool, error) {
	return len(s.findings) > 0, s.err
}

func finding(kind string) models.PhiFinding {
	return models.PhiFinding{Type: kind, StartIndex: 0, EndIndex: 5, Confidence: 0.9}
}

func TestEvaluate_OutboundCleanAllowed(t *testing.T) {
	gate := NewGate(&stubScanner{})

	decision, err := gate.Evaluate(context.Background(), "clean text", models.DirectionOutbound, models.GovernanceProduction)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.Allowed {
		t.Error("clean outbound content should be allowed")
	}
	if decision.FindingCount != 0 {
		t.Errorf("FindingCount = %d, want 0", decision.FindingCount)
	}
}

func TestEvaluate_OutboundBlockedInProduction(t *testing.T) {
	gate := NewGate(&stubScanner{findings: []models.PhiFinding{finding("ssn"), finding("mrn")}})

	decision, err := gate.Evaluate(context.Background(), "text", models.DirectionOutbound, models.GovernanceProduction)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if decision.Allowed {
		t.Error("identified outbound content must be blocked under production governance")
	}
	if decision.FindingCount != 2 {
		t.Errorf("FindingCount = %d, want 2", decision.FindingCount)
	}
	if decision.Reason == "" {
		t.Error("blocked decision must carry a reason")
	}
}

func TestEvaluate_OutboundPermittedByMode(t *testing.T) {
	for _, mode := range []models.GovernanceMode{models.GovernanceDemo, models.GovernanceIdentified} {
		gate := NewGate(&stubScanner{findings: []models.PhiFinding{finding("email")}})

		decision, err := gate.Evaluate(context.Background(), "text", models.DirectionOutbound, mode)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if !decision.Allowed {
			t.Errorf("mode %s should permit identified egress", mode)
		}
		if !decision.Flagged {
			t.Errorf("mode %s should still flag the egress", mode)
		}
	}
}

func TestEvaluate_InboundAlwaysAllowedButFlagged(t *testing.T) {
	gate := NewGate(&stubScanner{findings: []models.PhiFinding{finding("phone")}})

	decision, err := gate.Evaluate(context.Background(), "text", models.DirectionInbound, models.GovernanceProduction)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.Allowed {
		t.Error("inbound findings must pass through")
	}
	if !decision.Flagged {
		t.Error("inbound findings must be flagged for caller redaction")
	}
}

func TestEvaluate_ScannerFailureFailsClosed(t *testing.T) {
	gate := NewGate(&stubScanner{err: errors.New("connection refused")})

	decision, err := gate.Evaluate(context.Background(), "text", models.DirectionOutbound, models.GovernanceProduction)
	if err == nil {
		t.Fatal("expected error when scanner is unreachable")
	}
	var unavailable *models.ScannerUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %T, want *models.ScannerUnavailableError", err)
	}
	if decision.Allowed {
		t.Error("outbound must fail closed when the scanner is unreachable")
	}
}

func TestEvaluate_ScannerFailureInboundAllowed(t *testing.T) {
	gate := NewGate(&stubScanner{err: errors.New("connection refused")})

	decision, err := gate.Evaluate(context.Background(), "text", models.DirectionInbound, models.GovernanceProduction)
	if err != nil {
		t.Fatalf("Evaluate() inbound error = %v", err)
	}
	if !decision.Allowed {
		t.Error("inbound content stays inside the boundary; scanner outage should not block it")
	}
}

func TestEvaluate_FindingTypesDeduplicated(t *testing.T) {
	gate := NewGate(&stubScanner{findings: []models.PhiFinding{
		finding("ssn"), finding("ssn"), finding("email"),
	}})

	decision, _ := gate.Evaluate(context.Background(), "text", models.DirectionInbound, models.GovernanceProduction)
	if len(decision.FindingTypes) != 2 {
		t.Errorf("FindingTypes = %v, want 2 distinct types", decision.FindingTypes)
	}
	if decision.FindingTypes[0] != "email" || decision.FindingTypes[1] != "ssn" {
		t.Errorf("FindingTypes = %v, want sorted [email ssn]", decision.FindingTypes)
	}
}

func TestCommunityScanner_DetectsIdentifiers(t *testing.T) {
	scanner := NewCommunityScanner()

	tests := []struct {
		name string
		text string
		kind string
	}{
		{"mrn", "Chart MRN: 12345678 reviewed.", "mrn"},
		{"ssn", "SSN 123-45-6789 on file.", "ssn"},
		{"email", "Contact jane.doe@example.org for records.", "email"},
		{"dob", "DOB: 04/12/1975 per intake.", "date_of_birth"},
		{"titled name", "Mr. Vance presented with chest pain.", "patient_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings, err := scanner.Scan(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			found := false
			for _, f := range findings {
				if f.Type == tt.kind {
					found = true
					if f.EndIndex <= f.StartIndex {
						t.Errorf("finding %s has invalid span [%d,%d)", f.Type, f.StartIndex, f.EndIndex)
					}
				}
			}
			if !found {
				t.Errorf("Scan(%q) did not report %s", tt.text, tt.kind)
			}
		})
	}
}

func TestCommunityScanner_CleanText(t *testing.T) {
	scanner := NewCommunityScanner()

	has, err := scanner.HasPhi(context.Background(), "The cohort included 120 adults with type 2 diabetes.")
	if err != nil {
		t.Fatalf("HasPhi() error = %v", err)
	}
	if has {
		t.Error("clean clinical prose should not be flagged")
	}
}
