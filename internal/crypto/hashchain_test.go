package crypto

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securedocs-backend/internal/domain"
	apperrors "securedocs-backend/pkg/errors"
)

// buildChain encrypts plaintexts as consecutive versions of one block and
// links them with prevHash = hash(v-1)
func buildChain(t *testing.T, drk []byte, blockID string, epoch int64, plaintexts ...string) []*domain.BlockVersion {
	t.Helper()

	documentID := uuid.New()
	authorID := uuid.New()

	versions := make([]*domain.BlockVersion, 0, len(plaintexts))
	lastHash := domain.GenesisHash

	for i, plaintext := range plaintexts {
		cipherText, iv, err := EncryptBlock(plaintext, drk, blockID)
		require.NoError(t, err)

		v, err := domain.NewBlockVersion(blockID, documentID, authorID, 0, int64(i+1), epoch, cipherText, iv, lastHash)
		require.NoError(t, err)

		v.Hash, err = ComputeBlockHash(v, drk)
		require.NoError(t, err)

		versions = append(versions, v)
		lastHash = v.Hash
	}

	return versions
}

func TestComputeBlockHashDeterministic(t *testing.T) {
	drk := testDRK()
	versions := buildChain(t, drk, "b1", 0, "Hello")

	h1, err := ComputeBlockHash(versions[0], drk)
	require.NoError(t, err)
	h2, err := ComputeBlockHash(versions[0], drk)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestComputeBlockHashDefaultsGenesis(t *testing.T) {
	drk := testDRK()
	versions := buildChain(t, drk, "b1", 0, "Hello")

	// An absent prevHash hashes identically to an explicit genesis sentinel
	withEmpty := *versions[0]
	withEmpty.PrevHash = ""

	h, err := ComputeBlockHash(&withEmpty, drk)
	require.NoError(t, err)
	assert.Equal(t, versions[0].Hash, h)
}

func TestVerifyChainValid(t *testing.T) {
	drk := testDRK()
	versions := buildChain(t, drk, "b1", 0, "v1", "v2", "v3", "v4")

	err := VerifyChain(versions, StaticResolver(drk))
	assert.NoError(t, err)
}

func TestVerifyChainEmptyHistory(t *testing.T) {
	err := VerifyChain(nil, StaticResolver(testDRK()))
	assert.NoError(t, err)
}

func TestVerifyChainTamperedCipherText(t *testing.T) {
	drk := testDRK()
	versions := buildChain(t, drk, "b1", 0, "v1", "v2", "v3")

	// Mutate cipherText of the middle version without recomputing its hash
	versions[1].CipherText = "dGFtcGVyZWQ="

	err := VerifyChain(versions, StaticResolver(drk))
	require.Error(t, err)

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeHashMismatch, appErr.Code)
	assert.Contains(t, appErr.Message, "version 2")
}

func TestVerifyChainBrokenLink(t *testing.T) {
	drk := testDRK()
	versions := buildChain(t, drk, "b1", 0, "v1", "v2", "v3")

	// Mutate only prevHash of a non-first version
	versions[2].PrevHash = "bm90LXRoZS1yZWFsLWhhc2g="

	err := VerifyChain(versions, StaticResolver(drk))
	require.Error(t, err)

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeChainBroken, appErr.Code)
	assert.Contains(t, appErr.Message, "version 3")
}

func TestVerifyChainAcrossEpochRotation(t *testing.T) {
	epoch0DRK := testDRK()
	epoch1DRK, err := GenerateRootKey()
	require.NoError(t, err)

	// Two versions under epoch 0, then a rotation, then one under epoch 1.
	// prevHash continuity threads across the boundary.
	head := buildChain(t, epoch0DRK, "b1", 0, "v1", "v2")

	cipherText, iv, err := EncryptBlock("v3", epoch1DRK, "b1")
	require.NoError(t, err)
	tail, err := domain.NewBlockVersion("b1", head[0].DocumentID, head[0].AuthorID, 0, 3, 1, cipherText, iv, head[1].Hash)
	require.NoError(t, err)
	tail.Hash, err = ComputeBlockHash(tail, epoch1DRK)
	require.NoError(t, err)

	keys := map[int64][]byte{0: epoch0DRK, 1: epoch1DRK}
	resolver := func(epoch int64) ([]byte, bool) {
		drk, ok := keys[epoch]
		return drk, ok
	}

	err = VerifyChain(append(head, tail), resolver)
	assert.NoError(t, err)
}

func TestVerifyChainMissingEpochKey(t *testing.T) {
	drk := testDRK()
	versions := buildChain(t, drk, "b1", 5, "v1")

	err := VerifyChain(versions, func(int64) ([]byte, bool) { return nil, false })
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeKeyNotFound, apperrors.CodeOf(err))
}

func TestVerifyChainWrongEpochKey(t *testing.T) {
	epoch0DRK := testDRK()
	otherDRK, err := GenerateRootKey()
	require.NoError(t, err)

	versions := buildChain(t, epoch0DRK, "b1", 0, "v1")

	// Resolving the wrong key makes the recomputed hash differ
	err = VerifyChain(versions, StaticResolver(otherDRK))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeHashMismatch, apperrors.CodeOf(err))
}

func TestEndToEndTwoVersionScenario(t *testing.T) {
	drk := testDRK()

	versions := buildChain(t, drk, "b1", 0, "Hello", "Hello world")
	require.Len(t, versions, 2)
	assert.Equal(t, domain.GenesisHash, versions[0].PrevHash)
	assert.Equal(t, versions[0].Hash, versions[1].PrevHash)

	require.NoError(t, VerifyChain(versions, StaticResolver(drk)))

	// Decrypt both versions back out
	p1, err := DecryptBlock(versions[0].CipherText, versions[0].IV, drk, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", p1)
	p2, err := DecryptBlock(versions[1].CipherText, versions[1].IV, drk, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", p2)

	// Corrupting v1's cipherText fails verification at version 1
	versions[0].CipherText = "Y29ycnVwdGVk"
	err = VerifyChain(versions, StaticResolver(drk))
	require.Error(t, err)

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeHashMismatch, appErr.Code)
	assert.Contains(t, appErr.Message, "version 1")
}
