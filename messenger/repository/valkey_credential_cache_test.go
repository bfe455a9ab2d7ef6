package repository

import (
	"encoding/json"
	"testing"

	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/AzielCF/az-messenger/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealCredentialsEncryptsEveryField(t *testing.T) {
	cipher, err := crypto.NewCipher("cache-key")
	require.NoError(t, err)
	creds := domain.ChannelCredentials{AppSecret: "app-secret", VerificationToken: "verify", AccessToken: "page-token"}

	sealed, err := sealCredentials(cipher, creds)
	require.NoError(t, err)
	for _, v := range []string{sealed.AppSecret, sealed.VerificationToken, sealed.AccessToken} {
		assert.True(t, crypto.IsEncrypted(v), v)
	}

	payload, err := json.Marshal(sealed)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "app-secret")
	assert.NotContains(t, string(payload), "page-token")

	opened, err := openCredentials(cipher, sealed)
	require.NoError(t, err)
	assert.Equal(t, creds, opened)
}

func TestSealCredentialsWithoutCipherKeepsPlaintext(t *testing.T) {
	creds := domain.ChannelCredentials{AppSecret: "a", VerificationToken: "v", AccessToken: "t"}

	sealed, err := sealCredentials(nil, creds)
	require.NoError(t, err)
	assert.Equal(t, creds, sealed)

	opened, err := openCredentials(nil, sealed)
	require.NoError(t, err)
	assert.Equal(t, creds, opened)
}

func TestOpenCredentialsWithWrongKeyFails(t *testing.T) {
	a, _ := crypto.NewCipher("key-a")
	b, _ := crypto.NewCipher("key-b")

	sealed, err := sealCredentials(a, domain.ChannelCredentials{AppSecret: "a", VerificationToken: "v", AccessToken: "t"})
	require.NoError(t, err)

	_, err = openCredentials(b, sealed)
	assert.Error(t, err)
}
