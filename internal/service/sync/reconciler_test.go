package sync

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securedocs-backend/internal/crypto"
	"securedocs-backend/internal/domain"
	"securedocs-backend/internal/service/epoch"
	apperrors "securedocs-backend/pkg/errors"
)

// memStore is an in-memory LocalStore tracking what got persisted
type memStore struct {
	latest  map[string]*domain.BlockVersion
	records map[uuid.UUID][]*domain.DocumentKeyRecord
	puts    int
}

func newMemStore() *memStore {
	return &memStore{
		latest:  make(map[string]*domain.BlockVersion),
		records: make(map[uuid.UUID][]*domain.DocumentKeyRecord),
	}
}

func (s *memStore) GetLatestLocalVersion(ctx context.Context, blockID string) (*domain.BlockVersion, error) {
	return s.latest[blockID], nil
}

func (s *memStore) PutVerifiedVersion(ctx context.Context, v *domain.BlockVersion) error {
	s.latest[v.BlockID] = v
	s.puts++
	return nil
}

func (s *memStore) GetLocalKeyRecords(ctx context.Context, documentID uuid.UUID) ([]*domain.DocumentKeyRecord, error) {
	return s.records[documentID], nil
}

// syncFixture owns the identities and key material a reconciliation needs
type syncFixture struct {
	store      *memStore
	reconciler *Reconciler
	owner      *crypto.IdentityKeyPair
	ownerID    uuid.UUID
	me         *crypto.IdentityKeyPair
	myID       uuid.UUID
	documentID uuid.UUID
	drk        []byte
	keyRecord  *domain.DocumentKeyRecord
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	owner, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	me, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	drk, err := crypto.GenerateRootKey()
	require.NoError(t, err)

	f := &syncFixture{
		store:      newMemStore(),
		owner:      owner,
		ownerID:    uuid.New(),
		me:         me,
		myID:       uuid.New(),
		documentID: uuid.New(),
		drk:        drk,
	}
	f.reconciler = NewReconciler(f.store, epoch.NewManager())

	_, myEncKey := me.PublicIdentity()
	f.keyRecord, err = epoch.NewManager().CreateDistribution(drk, 0, f.documentID, f.myID, myEncKey, f.ownerID, owner.SigningPrivate)
	require.NoError(t, err)

	return f
}

// chain builds n linked versions of blockID under the fixture's root key
func (f *syncFixture) chain(t *testing.T, blockID string, n int) []*domain.BlockVersion {
	t.Helper()

	versions := make([]*domain.BlockVersion, 0, n)
	lastHash := domain.GenesisHash
	for i := 1; i <= n; i++ {
		cipherText, iv, err := crypto.EncryptBlock("content", f.drk, blockID)
		require.NoError(t, err)

		v, err := domain.NewBlockVersion(blockID, f.documentID, f.ownerID, 0, int64(i), 0, cipherText, iv, lastHash)
		require.NoError(t, err)
		v.Hash, err = crypto.ComputeBlockHash(v, f.drk)
		require.NoError(t, err)

		versions = append(versions, v)
		lastHash = v.Hash
	}
	return versions
}

func (f *syncFixture) input(blockID string, versions []*domain.BlockVersion) *VerifyBatchInput {
	ownerSignKey, _ := f.owner.PublicIdentity()
	return &VerifyBatchInput{
		BlockID:         blockID,
		ServerVersions:  versions,
		KeyRecords:      []*domain.DocumentKeyRecord{f.keyRecord},
		OwnerSigningKey: ownerSignKey,
		MyUserID:        f.myID,
		MyKeys:          f.me,
	}
}

func TestVerifyBatchAcceptsFullChain(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 4)

	out, err := f.reconciler.VerifyBatch(context.Background(), f.input("b1", versions))

	require.NoError(t, err)
	assert.Len(t, out.Accepted, 4)
	assert.Equal(t, int64(4), f.store.latest["b1"].Version)
}

func TestVerifyBatchUnorderedDelivery(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 3)

	// Server delivers out of order; the reconciler sorts by version
	shuffled := []*domain.BlockVersion{versions[2], versions[0], versions[1]}
	out, err := f.reconciler.VerifyBatch(context.Background(), f.input("b1", shuffled))

	require.NoError(t, err)
	assert.Len(t, out.Accepted, 3)
}

func TestVerifyBatchIdempotentRedelivery(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 3)
	ctx := context.Background()

	_, err := f.reconciler.VerifyBatch(ctx, f.input("b1", versions))
	require.NoError(t, err)

	// Same batch again: nothing new, no error
	out, err := f.reconciler.VerifyBatch(ctx, f.input("b1", versions))
	require.NoError(t, err)
	assert.Empty(t, out.Accepted)
	assert.Equal(t, 3, f.store.puts)
}

func TestVerifyBatchResumesFromLocalHead(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 5)
	ctx := context.Background()

	_, err := f.reconciler.VerifyBatch(ctx, f.input("b1", versions[:2]))
	require.NoError(t, err)

	out, err := f.reconciler.VerifyBatch(ctx, f.input("b1", versions))
	require.NoError(t, err)
	assert.Len(t, out.Accepted, 3)
	assert.Equal(t, int64(3), out.Accepted[0].Version)
}

func TestVerifyBatchForgedKeyRecord(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 2)

	// Tamper with the key record after signing
	f.keyRecord.EncryptedDRK = f.keyRecord.EncryptedDRK[:len(f.keyRecord.EncryptedDRK)-4] + "AAA="

	out, err := f.reconciler.VerifyBatch(context.Background(), f.input("b1", versions))

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSecurityBreach, apperrors.CodeOf(err))
	assert.Empty(t, out.Accepted)
	assert.Zero(t, f.store.puts)
}

func TestVerifyBatchChainBrokenTruncates(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 4)

	// Fork the history at version 3
	versions[2].PrevHash = "Zm9ya2Vk"

	out, err := f.reconciler.VerifyBatch(context.Background(), f.input("b1", versions))

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeChainBroken, apperrors.CodeOf(err))
	// The valid prefix before the break stays accepted
	assert.Len(t, out.Accepted, 2)
	assert.Equal(t, int64(2), f.store.latest["b1"].Version)
}

func TestVerifyBatchMissingEpochKey(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 2)

	// Version 2 claims an epoch the batch carries no key record for
	versions[1].Epoch = 7
	var err error
	versions[1].Hash, err = crypto.ComputeBlockHash(versions[1], f.drk)
	require.NoError(t, err)

	out, err := f.reconciler.VerifyBatch(context.Background(), f.input("b1", versions))

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeKeyNotFound, apperrors.CodeOf(err))
	assert.Len(t, out.Accepted, 1)
}

func TestVerifyBatchHashMismatchTruncates(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 3)

	versions[2].CipherText = "dGFtcGVyZWQ="

	out, err := f.reconciler.VerifyBatch(context.Background(), f.input("b1", versions))

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeHashMismatch, apperrors.CodeOf(err))
	assert.Len(t, out.Accepted, 2)
}

func TestVerifyBatchIndependentBlocks(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	// Corruption in one block's chain leaves another block unaffected
	bad := f.chain(t, "b1", 2)
	bad[1].CipherText = "dGFtcGVyZWQ="
	good := f.chain(t, "b2", 2)

	_, err := f.reconciler.VerifyBatch(ctx, f.input("b1", bad))
	require.Error(t, err)

	out, err := f.reconciler.VerifyBatch(ctx, f.input("b2", good))
	require.NoError(t, err)
	assert.Len(t, out.Accepted, 2)
}

func TestVerifyBlockStaleWrite(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 5)
	ctx := context.Background()

	_, err := f.reconciler.VerifyBatch(ctx, f.input("b1", versions))
	require.NoError(t, err)

	// Submitting version 3 when the local head is 5
	err = f.reconciler.VerifyBlock(ctx, versions[2], f.drk)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeOldVersionBlock, apperrors.CodeOf(err))
}

func TestVerifyBlockCorrupt(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 1)

	versions[0].CipherText = "dGFtcGVyZWQ="

	err := f.reconciler.VerifyBlock(context.Background(), versions[0], f.drk)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCorruptBlock, apperrors.CodeOf(err))
}

func TestVerifyBlockAccepts(t *testing.T) {
	f := newSyncFixture(t)
	versions := f.chain(t, "b1", 1)

	err := f.reconciler.VerifyBlock(context.Background(), versions[0], f.drk)
	assert.NoError(t, err)
}
