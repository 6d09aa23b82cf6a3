package util

import "testing"

func TestSanitizeFileName(t *testing.T) {
	got, err := SanitizeFileName(" dir/sub\\plie.mp4 ")
	if err != nil {
		t.Fatalf("SanitizeFileName: %v", err)
	}
	if got != "dir_sub_plie.mp4" {
		t.Fatalf("unexpected name %q", got)
	}

	for _, bad := range []string{"", "   ", "../etc/passwd"} {
		if _, err := SanitizeFileName(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"arabesque.mp4":                 "arabesque.mp4",
		`C:\fakepath\arabesque.mp4`:     "arabesque.mp4",
		"/home/dancer/videos/jete.mov":  "jete.mov",
		"  pirouette.webm ":             "pirouette.webm",
	}
	for in, want := range cases {
		if got := DisplayName(in); got != want {
			t.Fatalf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
