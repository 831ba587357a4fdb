package grammar

import (
	"strings"
	"testing"
)

// BenchmarkParseParts_LargeBody measures the boundary scan over a 4 MiB part
func BenchmarkParseParts_LargeBody(b *testing.B) {
	payload := strings.Repeat("0123456789abcdef-", 4<<20/17)
	body := "--" + boundary + "\r\nContent-Type: application/octet-stream\r\n\r\n" + payload + "\r\n--" + boundary + "--\r\n"

	b.SetBytes(int64(len(body)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseParts(body, boundary); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParseParts_ManyParts measures per-part overhead
func BenchmarkParseParts_ManyParts(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString("--" + boundary + "\r\nContent-Id: <p>\r\nContent-Type: text/plain\r\n\r\nhello\r\n")
	}
	sb.WriteString("--" + boundary + "--")
	body := sb.String()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseParts(body, boundary); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParseContentType measures header parsing
func BenchmarkParseContentType(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := ParseContentType(relatedContentType); err != nil {
			b.Fatal(err)
		}
	}
}
