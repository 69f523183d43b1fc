package portal

import "testing"

func TestAppendDiscordID(t *testing.T) {
	cases := []struct {
		name   string
		target string
		value  string
		want   string
	}{
		{
			name:   "plain target uses question mark",
			target: "https://example.com/welcome",
			value:  "12345",
			want:   "https://example.com/welcome?discord_id=12345",
		},
		{
			name:   "target with query uses ampersand",
			target: "https://example.com/welcome?ref=abc",
			value:  "98765",
			want:   "https://example.com/welcome?ref=abc&discord_id=98765",
		},
		{
			name:   "empty target degrades to relative query",
			target: "",
			value:  "xyz",
			want:   "?discord_id=xyz",
		},
		{
			name:   "space is percent-encoded not plus",
			target: "https://example.com/welcome",
			value:  "abc 123",
			want:   "https://example.com/welcome?discord_id=abc%20123",
		},
		{
			name:   "ampersand and hash are escaped",
			target: "https://example.com/welcome",
			value:  "a&b#c",
			want:   "https://example.com/welcome?discord_id=a%26b%23c",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AppendDiscordID(tc.target, tc.value); got != tc.want {
				t.Fatalf("AppendDiscordID(%q, %q) = %q, want %q", tc.target, tc.value, got, tc.want)
			}
		})
	}
}
