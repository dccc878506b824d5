package secrets

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"

	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewVault("correct horse battery staple")
	require.NoError(t, err)
	return v
}

func TestNewVault(t *testing.T) {
	t.Run("empty master secret is rejected", func(t *testing.T) {
		v, err := NewVault("")
		assert.ErrorIs(t, err, ErrEmptyMasterSecret)
		assert.Nil(t, v)
	})

	t.Run("any length master secret works", func(t *testing.T) {
		for _, secret := range []string{"x", strings.Repeat("long", 200)} {
			v, err := NewVault(secret)
			require.NoError(t, err)
			blob, err := v.Encrypt("AIza-test")
			require.NoError(t, err)
			plain, err := v.Decrypt(blob)
			require.NoError(t, err)
			assert.Equal(t, "AIza-test", plain)
		}
	})
}

func TestVault_Uninitialized(t *testing.T) {
	var nilVault *Vault
	_, err := nilVault.Encrypt("x")
	assert.ErrorIs(t, err, ErrVaultUninitialized)
	_, err = nilVault.Decrypt("x")
	assert.ErrorIs(t, err, ErrVaultUninitialized)
	_, err = nilVault.EncryptConfig(map[string]any{"a": "b"})
	assert.ErrorIs(t, err, ErrVaultUninitialized)
	_, err = nilVault.DecryptConfig("")
	assert.ErrorIs(t, err, ErrVaultUninitialized)

	zero := &Vault{}
	_, err = zero.Encrypt("x")
	assert.ErrorIs(t, err, ErrVaultUninitialized)
}

func TestVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)
	inputs := []string{
		"a",
		"sk_test_51H8xYzAbCdEf",
		"Voyage à Rome, Colisée + Vatican, 100€",
		"emoji 🚌✈️",
		strings.Repeat("0123456789", 1000),
		" leading and trailing ",
		"\x00binary\xff",
	}
	for _, in := range inputs {
		blob, err := v.Encrypt(in)
		require.NoError(t, err)
		assert.NotEmpty(t, blob)
		assert.NotContains(t, blob, in)

		out, err := v.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestVault_EmptyIsIdempotent(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", blob)

	plain, err := v.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}

func TestVault_NonceIsRandom(t *testing.T) {
	v := newTestVault(t)
	a, err := v.Encrypt("same")
	require.NoError(t, err)
	b, err := v.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVault_BlobIsURLSafe(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt(strings.Repeat("?>~", 50))
	require.NoError(t, err)
	assert.NotContains(t, blob, "+")
	assert.NotContains(t, blob, "/")
}

func TestVault_TamperDetection(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt("sk_live_secret")
	require.NoError(t, err)
	raw, err := base64.URLEncoding.DecodeString(blob)
	require.NoError(t, err)

	for i := range raw {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01
		out, err := v.Decrypt(base64.URLEncoding.EncodeToString(tampered))
		require.ErrorIs(t, err, ErrDecryptionFailure, "byte %d", i)
		assert.Empty(t, out)
	}
}

func TestVault_TamperedTextIsRejected(t *testing.T) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	v := newTestVault(t)

	// Lengths that leave unused bits in the last character
	for _, value := range []string{"k", "kk", "kkk", "kkkk"} {
		blob, err := v.Encrypt(value)
		require.NoError(t, err)

		for i := range len(blob) {
			for _, c := range []byte(alphabet) {
				if c == blob[i] || blob[i] == '=' {
					continue
				}
				tampered := blob[:i] + string(c) + blob[i+1:]
				out, err := v.Decrypt(tampered)
				require.ErrorIs(t, err, ErrDecryptionFailure, "value %q char %d -> %q", value, i, c)
				assert.Empty(t, out)
			}
		}

		last := strings.TrimRight(blob, "=")
		n := len(last) - 1
		flipped := last[:n] + string(last[n]^0x01) + blob[n+1:]
		_, err = v.Decrypt(flipped)
		assert.ErrorIs(t, err, ErrDecryptionFailure, "value %q with low bit flipped", value)
	}
}

func TestVault_DecryptFailures(t *testing.T) {
	v := newTestVault(t)

	t.Run("wrong master secret", func(t *testing.T) {
		blob, err := v.Encrypt("AIza-google")
		require.NoError(t, err)

		other, err := NewVault("a different master secret")
		require.NoError(t, err)
		_, err = other.Decrypt(blob)
		assert.ErrorIs(t, err, ErrDecryptionFailure)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := v.Decrypt("!!! not base64 !!!")
		assert.ErrorIs(t, err, ErrDecryptionFailure)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := v.Decrypt(base64.URLEncoding.EncodeToString([]byte("short")))
		assert.ErrorIs(t, err, ErrDecryptionFailure)
	})

	t.Run("legacy plaintext value", func(t *testing.T) {
		_, err := v.Decrypt("AIzaSyPlaintextKeyStoredByMistake")
		assert.ErrorIs(t, err, ErrDecryptionFailure)
	})
}

func TestVault_ConfigRoundTrip(t *testing.T) {
	v := newTestVault(t)

	cfg := map[string]any{
		"server":   "smtp.example.com",
		"port":     int64(587),
		"username": "agence@example.com",
		"password": "hunter2",
		"use_tls":  true,
		"use_ssl":  false,
		"ratio":    0.75,
	}
	blob, err := v.EncryptConfig(cfg)
	require.NoError(t, err)

	got, err := v.DecryptConfig(blob)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestVault_ConfigEmpty(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.EncryptConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "", blob)

	blob, err = v.EncryptConfig(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "", blob)

	cfg, err := v.DecryptConfig("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Empty(t, cfg)
}

func TestVault_DecryptConfigRejectsNonObject(t *testing.T) {
	v := newTestVault(t)
	for _, plaintext := range []string{"just a string", "null", " null ", "[1,2]", `{"a":1} trailing`} {
		blob, err := v.Encrypt(plaintext)
		require.NoError(t, err)

		cfg, err := v.DecryptConfig(blob)
		assert.ErrorIs(t, err, ErrDecryptionFailure, plaintext)
		assert.Nil(t, cfg, plaintext)
	}
}

func TestVault_ConcurrentUse(t *testing.T) {
	v := newTestVault(t)
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 64 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := strings.Repeat("k", i+1)
			blob, err := v.Encrypt(in)
			if err != nil {
				errs <- err
				return
			}
			out, err := v.Decrypt(blob)
			if err != nil {
				errs <- err
				return
			}
			if out != in {
				errs <- assert.AnError
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestTypedConfigs(t *testing.T) {
	v := newTestVault(t)

	t.Run("mail config round trip", func(t *testing.T) {
		in := tenancy.MailConfig{Server: "smtp.example.com", Port: 465, Username: "u", Password: "p", UseSSL: true, Sender: "agence@example.com"}
		blob, err := SealJSON(v, in)
		require.NoError(t, err)

		out, ok, err := OpenJSON[tenancy.MailConfig](v, blob)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, in, out)
	})

	t.Run("empty blob is not configured", func(t *testing.T) {
		out, ok, err := OpenJSON[tenancy.PublicationConfig](v, "")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, tenancy.PublicationConfig{}, out)
	})

	t.Run("invalid value is not sealed", func(t *testing.T) {
		_, err := SealJSON(v, tenancy.MailConfig{Server: "smtp.example.com"})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrDecryptionFailure)
	})

	t.Run("legacy flat ftp blob opens as tagged variant", func(t *testing.T) {
		blob, err := v.EncryptConfig(map[string]any{"host": "ftp.example.com", "user": "u", "password": "p", "path": "/www"})
		require.NoError(t, err)

		cfg, ok, err := OpenJSON[tenancy.PublicationConfig](v, blob)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, tenancy.PublicationFTP, cfg.Kind)
		assert.Equal(t, "ftp.example.com", cfg.FTP.Host)
	})

	t.Run("stored blob failing validation surfaces validation error", func(t *testing.T) {
		blob, err := v.EncryptConfig(map[string]any{"kind": "s3", "s3": map[string]any{"bucket": "b"}})
		require.NoError(t, err)

		_, ok, err := OpenJSON[tenancy.PublicationConfig](v, blob)
		assert.False(t, ok)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDecryptionFailure)
	})

	t.Run("garbage blob is a decryption failure", func(t *testing.T) {
		_, _, err := OpenJSON[tenancy.MailConfig](v, "garbage")
		assert.ErrorIs(t, err, ErrDecryptionFailure)
	})

	t.Run("sealed null is a decryption failure", func(t *testing.T) {
		blob, err := v.Encrypt("null")
		require.NoError(t, err)
		_, ok, err := OpenJSON[tenancy.MailConfig](v, blob)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrDecryptionFailure)
	})
}
