package pdf

import "testing"

func TestFindDOI(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"doi:10.1234/abc.def published 2024", "10.1234/abc.def"},
		{"See https://doi.org/10.48550/arXiv.2401.00001.", "10.48550/arXiv.2401.00001"},
		{"trailing punctuation 10.1234/xyz;", "10.1234/xyz"},
		{"no doi here", ""},
		{"malformed 10.12/x", ""},
	}
	for _, c := range cases {
		if got := findDOI(c.text); got != c.want {
			t.Errorf("findDOI(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestFindTitle(t *testing.T) {
	text := "Journal of Examples Vol. 3\nshort\nA Comprehensive Study of Something Important\nAuthor Name"
	if got := findTitle(text); got != "A Comprehensive Study of Something Important" {
		t.Errorf("findTitle() = %q", got)
	}

	if got := findTitle("short\nlines\nonly"); got != "" {
		t.Errorf("findTitle() = %q, want empty", got)
	}
}

func TestHeaderLine(t *testing.T) {
	headers := []string{
		"Journal of Theoretical Biology",
		"Volume 12, Issue 3",
		"Copyright 2024 The Authors",
	}
	for _, line := range headers {
		if !headerLine(line) {
			t.Errorf("headerLine(%q) = false, want true", line)
		}
	}
	if headerLine("A Comprehensive Study of Something Important") {
		t.Error("title misclassified as header")
	}
}
