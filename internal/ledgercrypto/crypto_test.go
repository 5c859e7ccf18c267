package ledgercrypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	content := []byte("legislative.motion.proposed|{}|" + "0000000000000000000000000000000000000000000000000000000000000000")
	sig := Sign(kp.Private, content)
	require.Len(t, sig, Base64SignatureLength)
	require.NoError(t, Verify(kp.Public, content, sig))
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	sig := Sign(kp.Private, []byte("original"))
	require.Error(t, Verify(kp.Public, []byte("tampered"), sig))
}

func TestVerifyRejectsWrongLength(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.Error(t, Verify(kp.Public, []byte("x"), "too-short"))
}

func TestConstantTimeEqualHex(t *testing.T) {
	require.True(t, ConstantTimeEqualHex("abcd", "abcd"))
	require.False(t, ConstantTimeEqualHex("abcd", "abce"))
	require.False(t, ConstantTimeEqualHex("abcd", "abcde"))
}
