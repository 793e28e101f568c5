package testutil

import (
	"qnote/internal/encryption"
	"qnote/internal/qn"
)

// NewTestEncryptor returns the deterministic test encryptor.
func NewTestEncryptor() qn.Encryptor {
	return encryption.NewTestEncryptor()
}
