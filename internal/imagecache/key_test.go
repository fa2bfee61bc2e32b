package imagecache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAddress(t *testing.T) {
	cases := []struct {
		name    string
		address string
		want    string
	}{
		{"plain url", "https://example.com/a.jpg", "https%3A%2F%2Fexample%2Ecom%2Fa%2Ejpg"},
		{"alnum only", "abcXYZ019", "abcXYZ019"},
		{"query and space", "http://h/p?q=a b", "http%3A%2F%2Fh%2Fp%3Fq%3Da%20b"},
		{"multibyte", "http://h/é", "http%3A%2F%2Fh%2F%C3%A9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeAddress(tc.address)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			back, err := DecodeFileName(got)
			require.NoError(t, err)
			assert.Equal(t, tc.address, back)
		})
	}
}

func TestEncodeAddressIsFilesystemSafe(t *testing.T) {
	got, err := EncodeAddress("https://a.b/../../etc/passwd\\x")
	require.NoError(t, err)
	assert.NotContains(t, got, "/")
	assert.NotContains(t, got, "\\")
	assert.NotContains(t, got, ".")
}

func TestEncodeAddressRejects(t *testing.T) {
	_, err := EncodeAddress("")
	assert.Error(t, err)

	_, err = EncodeAddress("http://h/\xff")
	assert.Error(t, err)

	// 每个 '/' 编码为 3 字节，85*3 = 255 恰好在上限内。
	_, err = EncodeAddress(strings.Repeat("/", 85))
	assert.NoError(t, err)
	_, err = EncodeAddress(strings.Repeat("/", 86))
	assert.Error(t, err)
}

func TestCanonicalAddress(t *testing.T) {
	got, err := CanonicalAddress("  https://example.com/a.jpg  ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.jpg", got)

	for _, bad := range []string{"", "   ", "relative/path.png", "example.com/a.png", "http://%zz"} {
		_, err := CanonicalAddress(bad)
		assert.Error(t, err, "address %q", bad)
	}
}
