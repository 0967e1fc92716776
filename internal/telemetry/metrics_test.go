package telemetry

import "testing"

// Without a registered meter provider the instruments are no-ops, so the
// recorders must still be safe to call from every code path.
func TestRecordersAreSafeWithoutProvider(t *testing.T) {
	m, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}

	m.RecordRequest("GET", "/api/search", "success", 0.012)
	m.RecordTokensUsed(128, "gemini-2.0-flash")
	m.RecordIndexBuild(1.5, 42, "ready")
	m.RecordRetrieval(0.02, 5, true)
}
