package model

import "testing"

func TestOwnerFromPath(t *testing.T) {
	cases := map[string]string{
		"u1/abc.png":    "u1",
		"u1/sub/x.jpg":  "u1",
		"abc.png":       "",
		"":              "",
		"/leading.png":  "",
	}
	for in, want := range cases {
		if got := OwnerFromPath(in); got != want {
			t.Errorf("OwnerFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileNameFromPath(t *testing.T) {
	if got := FileNameFromPath("u1/abc.png"); got != "abc.png" {
		t.Fatalf("expected abc.png, got %q", got)
	}
	if got := FileNameFromPath("abc.png"); got != "abc.png" {
		t.Fatalf("expected abc.png, got %q", got)
	}
}
