package encryption

import (
	"bytes"
	"fmt"
	"io"

	"qnote/internal/qn"
)

// testMagic marks data "encrypted" by TestEncryptor.
var testMagic = []byte("QNTEST\x00\x01")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. It prefixes
// data with a fixed marker instead of encrypting it, so tests can tell
// protected output from plaintext without key files or scrypt cost.
type TestEncryptor struct {
	passphrase string
	setup      bool
}

var _ qn.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor that accepts any passphrase until
// Setup is called.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// Setup remembers passphrase; Unlock will then reject any other.
func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.setup = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMagic); err != nil {
		return fmt.Errorf("writing test marker: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (qn.DecryptionContext, error) {
	if e.setup && passphrase != e.passphrase {
		return nil, fmt.Errorf("decrypting private key: incorrect passphrase")
	}
	return TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the marker written by TestEncryptor.
type TestDecryptionContext struct{}

func (TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	marker := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, marker); err != nil {
		return fmt.Errorf("reading test marker: %w", err)
	}
	if !bytes.Equal(marker, testMagic) {
		return fmt.Errorf("data was not written by TestEncryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
