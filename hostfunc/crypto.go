package hostfunc

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// MaxRandomBytes bounds a single randomBytes request.
const MaxRandomBytes = 64 << 10

var hashes = map[string]func() hash.Hash{
	"md5":         md5.New,
	"sha1":        sha1.New,
	"sha256":      sha256.New,
	"sha512":      sha512.New,
	"sha3-256":    sha3.New256,
	"sha3-512":    sha3.New512,
	"blake2b-256": func() hash.Hash { h, _ := blake2b.New256(nil); return h },
	"blake2b-512": func() hash.Hash { h, _ := blake2b.New512(nil); return h },
}

// Hashes lists the supported digest algorithms.
func Hashes() []string {
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Crypto backs the guest crypto module.
type Crypto struct{}

func (c Crypto) Register(r *Registry) {
	r.Register("crypto_hash", c.Hash)
	r.Register("crypto_hashes", func(ctx context.Context, args map[string]any) (any, error) {
		return Hashes(), nil
	})
	r.Register("crypto_random_bytes", c.RandomBytes)
	r.Register("crypto_random_uuid", c.RandomUUID)
}

// Digest hashes data with the named algorithm and encodes the sum.
func Digest(algo, data, encoding string) (string, error) {
	newHash, ok := hashes[algo]
	if !ok {
		return "", fmt.Errorf("digest method not supported: %s", algo)
	}
	h := newHash()
	h.Write([]byte(data))
	return encode(h.Sum(nil), encoding)
}

func encode(b []byte, encoding string) (string, error) {
	switch encoding {
	case "", "hex":
		return hex.EncodeToString(b), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(b), nil
	case "base64url":
		return base64.RawURLEncoding.EncodeToString(b), nil
	}
	return "", fmt.Errorf("unknown encoding: %s", encoding)
}

func (Crypto) Hash(ctx context.Context, args map[string]any) (any, error) {
	algo, err := stringArg(args, "algorithm")
	if err != nil {
		return nil, err
	}
	data, _ := args["data"].(string)
	encoding, _ := args["encoding"].(string)
	return Digest(algo, data, encoding)
}

func (Crypto) RandomBytes(ctx context.Context, args map[string]any) (any, error) {
	n := intArg(args, "size", 0)
	if n < 0 || n > MaxRandomBytes {
		return nil, fmt.Errorf("size must be between 0 and %d", MaxRandomBytes)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	encoding, _ := args["encoding"].(string)
	return encode(b, encoding)
}

// RandomUUID returns a version 4 UUID.
func (Crypto) RandomUUID(ctx context.Context, args map[string]any) (any, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, err
	}
	b[6] = b[6]&0x0f | 0x40
	b[8] = b[8]&0x3f | 0x80
	s := hex.EncodeToString(b[:])
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:], nil
}
