package candidate

import "testing"

func TestStatusAfter_Mapping(t *testing.T) {
	tests := []struct {
		kind DecisionKind
		want Status
	}{
		{DecisionAccept, StatusAccepted},
		{DecisionReject, StatusRejected},
		{DecisionMerge, StatusMerged},
		{DecisionNeedsMoreEvidence, StatusNeedsContext},
		{DecisionDefer, StatusPending},
	}

	for _, tt := range tests {
		got, err := StatusAfter(tt.kind)
		if err != nil {
			t.Fatalf("StatusAfter(%s) error = %v", tt.kind, err)
		}
		if got != tt.want {
			t.Errorf("StatusAfter(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestStatusAfter_Unknown(t *testing.T) {
	if _, err := StatusAfter("approve"); err == nil {
		t.Fatal("StatusAfter(approve) expected error, got nil")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() {
		t.Error("pending should not be terminal")
	}
	for _, s := range []Status{StatusAccepted, StatusRejected, StatusMerged, StatusNeedsContext} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestStatus_Valid(t *testing.T) {
	if !StatusNeedsContext.Valid() {
		t.Error("needs_context should be valid")
	}
	if Status("approved").Valid() {
		t.Error("approved should not be valid")
	}
}
