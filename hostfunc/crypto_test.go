package hostfunc

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	tests := []struct {
		algo, encoding, want string
	}{
		{"md5", "hex", "900150983cd24fb0d6963f7d28e17f72"},
		{"sha1", "hex", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"sha256", "", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"sha3-256", "hex", "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"},
		{"sha256", "base64", "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0="},
	}
	for _, tt := range tests {
		t.Run(tt.algo+"/"+tt.encoding, func(t *testing.T) {
			got, err := Digest(tt.algo, "abc", tt.encoding)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDigestLengths(t *testing.T) {
	for algo, hexLen := range map[string]int{"sha512": 128, "sha3-512": 128, "blake2b-256": 64, "blake2b-512": 128} {
		got, err := Digest(algo, "abc", "hex")
		require.NoError(t, err, algo)
		assert.Len(t, got, hexLen, algo)
	}
}

func TestDigestErrors(t *testing.T) {
	_, err := Digest("crc32", "abc", "hex")
	assert.EqualError(t, err, "digest method not supported: crc32")

	_, err = Digest("sha1", "abc", "latin1")
	assert.Error(t, err)
}

func TestCryptoRandom(t *testing.T) {
	c := Crypto{}
	ctx := context.Background()

	b, err := c.RandomBytes(ctx, map[string]any{"size": float64(8)})
	require.NoError(t, err)
	assert.Len(t, b, 16)

	_, err = c.RandomBytes(ctx, map[string]any{"size": float64(MaxRandomBytes + 1)})
	assert.Error(t, err)

	id, err := c.RandomUUID(ctx, nil)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`), id)
}

func TestHashesSorted(t *testing.T) {
	names := Hashes()
	assert.Contains(t, names, "blake2b-512")
	assert.IsIncreasing(t, names)
}

func TestOSInfoVirtual(t *testing.T) {
	info, err := NewOSInfo().Info(context.Background(), nil)
	require.NoError(t, err)
	m := info.(map[string]any)
	assert.Equal(t, "wasi", m["platform"])
	assert.Equal(t, "sandbox", m["hostname"])
}
