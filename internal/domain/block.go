package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the prevHash sentinel for the first version of every block.
// Version 1 of a block has no predecessor, so its chain link points here.
const GenesisHash = "GENESIS"

// BlockVersion is one immutable entry in a block's append-only history.
// Versions are strictly increasing per block id, starting at 1. CipherText,
// IV, PrevHash and Hash are base64 encoded. Index is the block's display
// position within the document; it participates in the hash but may change
// between versions.
// Maps to the Cassandra block_versions table.
type BlockVersion struct {
	BlockID    string    `json:"block_id" db:"block_id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	AuthorID   uuid.UUID `json:"author_id" db:"author_id"`
	Index      int       `json:"index" db:"idx"`
	Version    int64     `json:"version" db:"version"`
	Epoch      int64     `json:"epoch" db:"epoch"`
	CipherText string    `json:"cipher_text" db:"cipher_text"`
	IV         string    `json:"iv" db:"iv"`
	PrevHash   string    `json:"prev_hash" db:"prev_hash"`
	Hash       string    `json:"hash" db:"hash"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NewBlockVersion builds a validated BlockVersion. It rejects missing or
// out-of-range fields before anything reaches the crypto core.
func NewBlockVersion(blockID string, documentID, authorID uuid.UUID, index int, version, epoch int64, cipherText, iv, prevHash string) (*BlockVersion, error) {
	v := &BlockVersion{
		BlockID:    blockID,
		DocumentID: documentID,
		AuthorID:   authorID,
		Index:      index,
		Version:    version,
		Epoch:      epoch,
		CipherText: cipherText,
		IV:         iv,
		PrevHash:   prevHash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks structural invariants. The hash itself is checked by the
// integrity layer, not here.
func (v *BlockVersion) Validate() error {
	if v.BlockID == "" {
		return fmt.Errorf("block version: missing block id")
	}
	if v.DocumentID == uuid.Nil {
		return fmt.Errorf("block version: missing document id")
	}
	if v.AuthorID == uuid.Nil {
		return fmt.Errorf("block version: missing author id")
	}
	if v.Version < 1 {
		return fmt.Errorf("block version: version must be >= 1, got %d", v.Version)
	}
	if v.Epoch < 0 {
		return fmt.Errorf("block version: epoch must be >= 0, got %d", v.Epoch)
	}
	if v.CipherText == "" {
		return fmt.Errorf("block version: missing cipher text")
	}
	if v.IV == "" {
		return fmt.Errorf("block version: missing iv")
	}
	if v.Version == 1 && v.PrevHash != GenesisHash {
		return fmt.Errorf("block version: first version must carry the genesis prev hash")
	}
	if v.Version > 1 && (v.PrevHash == "" || v.PrevHash == GenesisHash) {
		return fmt.Errorf("block version: version %d must carry its predecessor's hash", v.Version)
	}
	return nil
}

// CanonicalString is the exact byte layout the integrity hash covers.
// PrevHash is included so each version's hash commits to the whole history
// before it.
func (v *BlockVersion) CanonicalString() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d|%d|%s|%s",
		v.BlockID, v.AuthorID, v.DocumentID, v.Index, v.Version, v.Epoch, v.CipherText, v.PrevHash)
}
