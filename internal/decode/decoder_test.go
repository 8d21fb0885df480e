package decode

import (
	"reflect"
	"testing"
)

func TestDecoder_Feed(t *testing.T) {
	tests := []struct {
		name        string
		delimiter   byte
		stripCR     bool
		chunks      [][]byte
		want        []string
		wantPending int
	}{
		{
			name:      "two complete segments in one chunk",
			delimiter: '\n',
			chunks:    [][]byte{[]byte("ABC123\nXYZ789\n")},
			want:      []string{"ABC123", "XYZ789"},
		},
		{
			name:      "segment split across two chunks",
			delimiter: '\n',
			chunks:    [][]byte{[]byte("ABC1"), []byte("23\n")},
			want:      []string{"ABC123"},
		},
		{
			name:        "trailing fragment stays buffered",
			delimiter:   '\n',
			chunks:      [][]byte{[]byte("ABC\nXY")},
			want:        []string{"ABC"},
			wantPending: 2,
		},
		{
			name:      "empty segment between delimiters",
			delimiter: '\n',
			chunks:    [][]byte{[]byte("\n\n")},
			want:      []string{"", ""},
		},
		{
			name:      "no delimiter yields nothing",
			delimiter: '\n',
			chunks:    [][]byte{[]byte("ABC"), []byte("DEF")},
			want:      nil,
			wantPending: 6,
		},
		{
			name:      "crlf stripped when configured",
			delimiter: '\n',
			stripCR:   true,
			chunks:    [][]byte{[]byte("ABC\r\nDEF\r\n")},
			want:      []string{"ABC", "DEF"},
		},
		{
			name:      "cr kept when not configured",
			delimiter: '\n',
			chunks:    [][]byte{[]byte("ABC\r\n")},
			want:      []string{"ABC\r"},
		},
		{
			name:      "custom delimiter",
			delimiter: '\r',
			chunks:    [][]byte{[]byte("123\r456\r")},
			want:      []string{"123", "456"},
		},
		{
			name:      "byte by byte",
			delimiter: '\n',
			chunks:    [][]byte{{'A'}, {'B'}, {'\n'}, {'C'}},
			want:      []string{"AB"},
			wantPending: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(tt.delimiter, tt.stripCR)

			var got []string
			for _, chunk := range tt.chunks {
				got = append(got, d.Feed(chunk)...)
			}

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Feed() records = %q, want %q", got, tt.want)
			}
			if d.Pending() != tt.wantPending {
				t.Errorf("Pending() = %d, want %d", d.Pending(), tt.wantPending)
			}
		})
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder('\n', false)

	if got := d.Feed([]byte("STALE")); got != nil {
		t.Fatalf("Feed() = %q, want nil", got)
	}
	if d.Pending() != 5 {
		t.Fatalf("Pending() = %d, want 5", d.Pending())
	}

	// New session: buffered bytes from the previous one must not leak
	d.Reset()

	got := d.Feed([]byte("FRESH\n"))
	want := []string{"FRESH"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Feed() after Reset = %q, want %q", got, want)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
}

func TestDecoder_FeedEmptyChunk(t *testing.T) {
	d := NewDecoder('\n', false)
	if got := d.Feed(nil); got != nil {
		t.Errorf("Feed(nil) = %q, want nil", got)
	}
	if got := d.Feed([]byte{}); got != nil {
		t.Errorf("Feed(empty) = %q, want nil", got)
	}
}
