package qn

import "io"

// Encryptor protects database backups at rest.
// Encryption needs only the public key, so backups run unattended.
// Decryption needs the passphrase that unlocks the private key.
type Encryptor interface {
	// Setup generates the key pair once, during `qnote keys init`. The
	// private key is stored encrypted with passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key. A wrong passphrase is an error.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for one restore.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
