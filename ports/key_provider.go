package ports

// KeyProvider supplies symmetric key material for field-level encryption.
// Key custody and rotation live outside this core; absence of a key is a
// fatal configuration error at engine construction, never a per-record
// error.
type KeyProvider interface {
	// EncryptionKey returns the active 32-byte key.
	EncryptionKey() ([]byte, error)
}
