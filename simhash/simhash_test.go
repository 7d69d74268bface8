package simhash

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func leidenTable(rows ...string) string {
	var b strings.Builder
	b.WriteString(`<table class="pagedtable ranking"><tbody>`)
	for i, name := range rows {
		b.WriteString(`<tr><td class="rank">`)
		b.WriteString(strings.Repeat("1", i+1))
		b.WriteString(`</td><td class="university"><span data-tooltip="`)
		b.WriteString(name)
		b.WriteString(`">`)
		b.WriteString(name)
		b.WriteString(`</span></td></tr>`)
	}
	b.WriteString(`</tbody></table>`)
	return b.String()
}

func TestFingerprint_IdenticalTexts(t *testing.T) {
	fp1 := Fingerprint("ferdowsi university of mashhad")
	fp2 := Fingerprint("ferdowsi university of mashhad")
	if fp1 != fp2 {
		t.Errorf("identical texts should produce identical fingerprints: %016x vs %016x", fp1, fp2)
	}
}

func TestFingerprint_EmptyInput(t *testing.T) {
	if fp := Fingerprint("   \n\t"); fp != 0 {
		t.Errorf("whitespace-only input should produce 0, got %016x", fp)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b uint64
		want int
	}{
		{0, 0, 0},
		{0xFF, 0x00, 8},
		{0xFFFFFFFFFFFFFFFF, 0, 64},
		{0b1010, 0b0101, 4},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%x, %x) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDrifted(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur uint64
		threshold int
		want      bool
	}{
		{"unchanged", 0xABCD, 0xABCD, 12, false},
		{"within threshold", 0xFF, 0x0F, 4, false},
		{"beyond threshold", 0xFF, 0xFF00, 4, true},
		{"no previous", 0, 0xFFFF, 0, false},
		{"no current", 0xFFFF, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Drifted(tt.prev, tt.cur, tt.threshold); got != tt.want {
				t.Errorf("Drifted = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatParse(t *testing.T) {
	fp := FingerprintLayout(leidenTable("Ferdowsi University of Mashhad"))
	s := Format(fp)
	if len(s) != 16 {
		t.Errorf("Format length = %d, want 16", len(s))
	}
	got, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != fp {
		t.Errorf("Parse(Format(%x)) = %x", fp, got)
	}
	if _, err := Parse("not-hex"); err == nil {
		t.Error("Parse should reject non-hex input")
	}
}

func TestFingerprintLayout_IgnoresText(t *testing.T) {
	a := leidenTable("Ferdowsi University of Mashhad", "Sharif University of Technology")
	b := leidenTable("University of Tehran", "Amirkabir University of Technology")
	if FingerprintLayout(a) != FingerprintLayout(b) {
		t.Error("same layout with different institutions should fingerprint identically")
	}
}

func TestFingerprintLayout_ClassRename(t *testing.T) {
	before := leidenTable("Ferdowsi University of Mashhad", "Sharif University of Technology")
	after := strings.ReplaceAll(before, `class="rank"`, `class="position"`)
	if FingerprintLayout(before) == FingerprintLayout(after) {
		t.Error("renamed rank cell class should change the fingerprint")
	}
}

func TestFingerprintLayout_Empty(t *testing.T) {
	if fp := FingerprintLayout(""); fp != 0 {
		t.Errorf("empty markup should produce 0, got %016x", fp)
	}
	if fp := FingerprintLayout("no tags at all"); fp != 0 {
		t.Errorf("plain text should produce 0, got %016x", fp)
	}
	if fp := FingerprintLayout("<br/>"); fp == 0 {
		t.Error("single tag should produce a non-zero fingerprint")
	}
}

func TestLayoutTokens(t *testing.T) {
	got := layoutTokens(`<table class="ranking pagedtable" id="t"><tr><td class="rank">1</td><td>FUM</td></tr></table>`)
	want := []string{"table.pagedtable.ranking", "tr", "td.rank", "td"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("layoutTokens mismatch (-want +got):\n%s", diff)
	}
}

func TestMakeShingles(t *testing.T) {
	got := makeShingles([]string{"a", "b", "c", "d"}, 3)
	want := []string{"a_b_c", "b_c_d"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("makeShingles mismatch (-want +got):\n%s", diff)
	}
	if s := makeShingles([]string{"a", "b"}, 3); s != nil {
		t.Errorf("expected nil for fewer tokens than n, got: %v", s)
	}
}
