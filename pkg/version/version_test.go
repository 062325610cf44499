package version

import "testing"

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version == "" || info.GitCommit == "" || info.BuildDate == "" {
		t.Fatalf("expected non-empty version info")
	}
}

func TestShortCommitAndString(t *testing.T) {
	prev := GitCommit
	t.Cleanup(func() { GitCommit = prev })

	GitCommit = "abcdef123456"
	if GetShortCommit() != "abcdef1" {
		t.Fatalf("expected short commit")
	}
	info := Info{Version: "v1.2.3", GitCommit: "abcdef123456", BuildDate: "2026-01-01"}
	if got := info.String(); got != "v1.2.3 (abcdef1, built 2026-01-01)" {
		t.Fatalf("unexpected string %q", got)
	}
}
