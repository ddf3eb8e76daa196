package util

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "report.pdf", want: "report.pdf"},
		{name: "spaces", in: " my report v2.pdf ", want: "my_report_v2.pdf"},
		{name: "traversal", in: "../../etc/passwd", want: "passwd"},
		{name: "windows path", in: `C:\Users\a\notes.txt`, want: "notes.txt"},
		{name: "hidden", in: ".env", want: "env"},
		{name: "unicode", in: "résumé.pdf", want: "r_sum_.pdf"},
		{name: "only dots", in: "..", wantErr: true},
		{name: "empty", in: "   ", wantErr: true},
		{name: "trailing slash", in: "dir/", wantErr: true},
		{name: "only symbols", in: "###", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFileName(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSanitizeFileNameKeepsTail(t *testing.T) {
	got, err := SanitizeFileName(strings.Repeat("a", 300) + ".pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != maxFileNameLen || !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("expected %d chars ending in .pdf, got %d %q", maxFileNameLen, len(got), got[len(got)-8:])
	}
}
