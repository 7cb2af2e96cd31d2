package jwt

import (
	"testing"
)

// FuzzCodecDecode exercises the codec parser with arbitrary token strings.
// Goal: no panics; invalid inputs must be rejected with errors.
func FuzzCodecDecode(f *testing.F) {
	codec, err := NewCodec(Config{AllowEphemeralKey: true, VerifySignature: true})
	if err != nil {
		f.Fatal(err)
	}

	validToken, err := codec.Encode("https://fuzz.test", "identity", map[string]string{"key": "k", "token": "t"})
	if err != nil {
		f.Fatal(err)
	}

	f.Add(validToken)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJ0ZXN0IjoxfQ.")
	f.Add(validToken[:len(validToken)-4])

	f.Fuzz(func(t *testing.T, token string) {
		_, _ = codec.Decode(token)
		_, _ = codec.Claim(token, "identity")
		_, _ = codec.Verify(token, "https://fuzz.test")
	})
}
