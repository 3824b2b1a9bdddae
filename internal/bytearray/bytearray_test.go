package bytearray

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEscapes(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  []byte
	}{
		{"hex pair", `@ByteArray(\x41\x42)`, []byte("AB")},
		{"nul", `@ByteArray(\0\0)`, []byte{0, 0}},
		{"single hex digit then literal", `@ByteArray(\x5z)`, []byte{0x05, 'z'}},
		{"hex is capped at two digits", `@ByteArray(\x414)`, []byte("A4")},
		{"mixed case hex", `@ByteArray(\xaB\xC)`, []byte{0xab, 0x0c}},
		{"controls", `@ByteArray(\n\r\t\f\v\a\b)`, []byte{0x0a, 0x0d, 0x09, 0x0c, 0x0b, 0x07, 0x08}},
		{"escaped backslash", `@ByteArray(a\\b)`, []byte(`a\b`)},
		{"x without digits", `@ByteArray(\xg)`, []byte(`\xg`)},
		{"unknown escape", `@ByteArray(\q)`, []byte(`\q`)},
		{"trailing backslash", `@ByteArray(ab\)`, []byte(`ab\`)},
		{"quoted form", `"@ByteArray(ab\x63)"`, []byte("abc")},
		{"empty body", `@ByteArray()`, []byte{}},
		{"literal text", `@ByteArray(hello)`, []byte("hello")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decode(tc.value))
		})
	}
}

func TestDecodeWithoutMarkerIsEmpty(t *testing.T) {
	for _, v := range []string{"", "plain", "ByteArray(x)", `"@ByteArray(`, "@ByteArray("} {
		got := Decode(v)
		require.NotNil(t, got, v)
		assert.Empty(t, got, v)
	}
}

func TestDecodeNeverPanicsOnArbitraryInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []byte(`\x0123456789abcdefABCDEFnrtfvab"()@ByteArray`)
	for i := 0; i < 2000; i++ {
		n := rng.Intn(24)
		buf := make([]byte, n)
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		assert.NotPanics(t, func() { Decode("@ByteArray(" + string(buf) + ")") })
		assert.NotPanics(t, func() { Decode(string(buf)) })
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		data := make([]byte, rng.Intn(40))
		rng.Read(data)
		encoded := Encode(data)
		assert.Equal(t, data, Decode(encoded), "encoded=%q", encoded)
		assert.Equal(t, encoded, Encode(Decode(encoded)))
	}
}

func TestEncodeEscapesHexDigitAfterHexEscape(t *testing.T) {
	assert.Equal(t, `\xf\x61`, EncodeBody([]byte{0x0f, 'a'}))
	assert.Equal(t, `\xf`+"z", EncodeBody([]byte{0x0f, 'z'}))
	assert.Equal(t, `\0`+"1", EncodeBody([]byte{0x00, '1'}))
}

func TestEncodeQuotesSpecialCharacters(t *testing.T) {
	assert.Equal(t, `"@ByteArray(a;b)"`, Encode([]byte("a;b")))
	assert.Equal(t, `@ByteArray(ab)`, Encode([]byte("ab")))
}

func TestMACRecovery(t *testing.T) {
	value := `@ByteArray(\xa8\xe3\xee\xb2\x9c\x1)`
	assert.Equal(t, []byte{0xa8, 0xe3, 0xee, 0xb2, 0x9c, 0x01}, Decode(value))
}
