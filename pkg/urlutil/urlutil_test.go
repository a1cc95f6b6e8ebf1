package urlutil

import "testing"

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		base string
		want string
	}{
		{
			name: "absolute url unchanged",
			url:  "https://cdn.example/v.mp4",
			base: "https://embed.example/e/1",
			want: "https://cdn.example/v.mp4",
		},
		{
			name: "protocol relative",
			url:  "//cdn.example/v.mp4",
			base: "https://embed.example/e/1",
			want: "https://cdn.example/v.mp4",
		},
		{
			name: "absolute path",
			url:  "/dl/v.mp4?signature=a(b)",
			base: "https://embed.example/e/1?x=1",
			want: "https://embed.example/dl/v.mp4?signature=a(b)",
		},
		{
			name: "relative path",
			url:  "v.mp4",
			base: "https://embed.example/e/1",
			want: "https://embed.example/e/v.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveURL(tt.url, tt.base); got != tt.want {
				t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.url, tt.base, got, tt.want)
			}
		})
	}
}

func TestSchemeHost(t *testing.T) {
	if got := SchemeHost("https://embed.example/e/1?x=1"); got != "https://embed.example" {
		t.Errorf("SchemeHost = %q", got)
	}
}

func TestHost(t *testing.T) {
	if got := Host("https://embed.example:8443/e/1"); got != "embed.example" {
		t.Errorf("Host = %q", got)
	}
	if got := Host("://bad"); got != "" {
		t.Errorf("Host(invalid) = %q, want empty", got)
	}
}
