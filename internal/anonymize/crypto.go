package anonymize

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"privalytics/domain/core"
	"privalytics/domain/research"
)

// fieldCipher performs randomized AES-GCM encryption of sensitive string
// fields. Every field of every record gets a fresh nonce from crypto/rand,
// so two encryptions of the same plaintext never match. Deterministic
// encryption would reintroduce linkability.
type fieldCipher struct {
	aead cipher.AEAD
}

func newFieldCipher(key []byte) (*fieldCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &fieldCipher{aead: aead}, nil
}

// seal encrypts a field value; the nonce is prepended to the ciphertext.
func (c *fieldCipher) seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// encryptFields encrypts the configured sensitive string fields: subject id,
// clinician id, and session notes.
func (e *Engine) encryptFields(records []research.ResearchRecord) error {
	for i := range records {
		if records[i].SubjectID != "" {
			sealed, err := e.cipher.seal(records[i].SubjectID.String())
			if err != nil {
				return err
			}
			records[i].SubjectID = core.SubjectID(sealed)
		}
		if records[i].ClinicianID != "" {
			sealed, err := e.cipher.seal(records[i].ClinicianID)
			if err != nil {
				return err
			}
			records[i].ClinicianID = sealed
		}
		if records[i].SessionNotes != "" {
			sealed, err := e.cipher.seal(records[i].SessionNotes)
			if err != nil {
				return err
			}
			records[i].SessionNotes = sealed
		}
	}
	return nil
}
