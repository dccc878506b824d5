package secrets

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validatable is implemented by typed credential documents
type Validatable interface {
	Validate() error
}

// SealJSON validates value, serialises it to JSON and encrypts it
func SealJSON[T Validatable](v *Vault, value T) (string, error) {
	if err := v.ready(); err != nil {
		return "", err
	}
	if err := value.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("secrets: encode %T: %w", value, err)
	}
	return v.Encrypt(string(data))
}

// OpenJSON decrypts blob into T and validates it. The boolean is false
// when blob is empty (not configured); in that case T is the zero value.
// A blob that decrypts but does not decode into T is a decryption
// failure; one that decodes but fails validation returns the validation
// error.
func OpenJSON[T Validatable](v *Vault, blob string) (T, bool, error) {
	var value T
	plaintext, err := v.Decrypt(blob)
	if err != nil {
		return value, false, err
	}
	if plaintext == "" {
		return value, false, nil
	}
	if strings.TrimSpace(plaintext) == "null" {
		return value, false, fmt.Errorf("%w: decode %T", ErrDecryptionFailure, value)
	}
	if err := json.Unmarshal([]byte(plaintext), &value); err != nil {
		return value, false, fmt.Errorf("%w: decode %T", ErrDecryptionFailure, value)
	}
	if err := value.Validate(); err != nil {
		return value, false, err
	}
	return value, true, nil
}
