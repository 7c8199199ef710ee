package buildinfo

import "testing"

func TestSummary(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	t.Cleanup(func() {
		Version, Commit, Date = oldVersion, oldCommit, oldDate
	})

	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"v1.0.0", "", "", "v1.0.0"},
		{"v1.0.0", "abc123", "", "v1.0.0 (abc123)"},
		{"v1.0.0", "", "2026-01-02", "v1.0.0 (2026-01-02)"},
		{"v1.0.0", "abc123", "2026-01-02", "v1.0.0 (abc123 2026-01-02)"},
	}
	for _, tt := range tests {
		Version, Commit, Date = tt.version, tt.commit, tt.date
		if got := Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}

	Version, Commit, Date = "", "", ""
	if got := Summary(); got == "" {
		t.Fatalf("expected a fallback version")
	}
}
