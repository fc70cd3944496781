package crypto

import "golang.org/x/xerrors"

var (
	// ErrAuthentication is returned when an AEAD tag does not verify.
	ErrAuthentication = xerrors.New("authentication failed")
	// ErrDecryption is returned for failed key unwrapping or malformed ciphertext.
	ErrDecryption = xerrors.New("decryption failed")
	// ErrKeyMaterialMissing is returned when persistent keys are absent and may not be generated.
	ErrKeyMaterialMissing = xerrors.New("key material missing")

	errSignerMismatch = xerrors.New("signature made by an unexpected key")
)
