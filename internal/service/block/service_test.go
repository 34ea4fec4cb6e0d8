package block

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"securedocs-backend/internal/domain"
	"securedocs-backend/internal/service/editing"
	apperrors "securedocs-backend/pkg/errors"
)

type MockVersionRepository struct {
	mock.Mock
}

func (m *MockVersionRepository) SaveVersion(ctx context.Context, v *domain.BlockVersion) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockVersionRepository) GetLatestVersion(ctx context.Context, documentID uuid.UUID, blockID string) (*domain.BlockVersion, error) {
	args := m.Called(ctx, documentID, blockID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BlockVersion), args.Error(1)
}

func (m *MockVersionRepository) GetLatestVersions(ctx context.Context, documentID uuid.UUID) ([]*domain.BlockVersion, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.BlockVersion), args.Error(1)
}

func (m *MockVersionRepository) GetHistory(ctx context.Context, documentID uuid.UUID, blockID string, sinceVersion int64, limit int) ([]*domain.BlockVersion, error) {
	args := m.Called(ctx, documentID, blockID, sinceVersion, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.BlockVersion), args.Error(1)
}

func (m *MockVersionRepository) DeleteBlock(ctx context.Context, documentID uuid.UUID, blockID string) error {
	args := m.Called(ctx, documentID, blockID)
	return args.Error(0)
}

type MockDocumentReader struct {
	mock.Mock
}

func (m *MockDocumentReader) GetDocument(ctx context.Context, documentID uuid.UUID) (*domain.Document, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentReader) GetMember(ctx context.Context, documentID, userID uuid.UUID) (*domain.DocumentMember, error) {
	args := m.Called(ctx, documentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentMember), args.Error(1)
}

// blockFixture wires the service over mocks and an in-memory lock coordinator
type blockFixture struct {
	versions   *MockVersionRepository
	documents  *MockDocumentReader
	sessions   *editing.Service
	service    *Service
	documentID uuid.UUID
	ownerID    uuid.UUID
	editorID   uuid.UUID
	doc        *domain.Document
}

func newBlockFixture(t *testing.T) *blockFixture {
	t.Helper()

	f := &blockFixture{
		versions:   new(MockVersionRepository),
		documents:  new(MockDocumentReader),
		sessions:   editing.NewService(editing.NewMemoryCoordinator(), 60*time.Second),
		documentID: uuid.New(),
		ownerID:    uuid.New(),
		editorID:   uuid.New(),
	}
	f.doc = &domain.Document{
		DocumentID:   f.documentID,
		OwnerID:      f.ownerID,
		CurrentEpoch: 0,
	}
	f.service = NewService(f.versions, f.documents, f.sessions, nil)
	return f
}

func (f *blockFixture) editorMember() *domain.DocumentMember {
	return &domain.DocumentMember{DocumentID: f.documentID, UserID: f.editorID, Role: domain.RoleEditor}
}

func (f *blockFixture) version(version int64, prevHash string) *domain.BlockVersion {
	return &domain.BlockVersion{
		BlockID:    "b1",
		DocumentID: f.documentID,
		AuthorID:   f.editorID,
		Version:    version,
		Epoch:      0,
		CipherText: "Y2lwaGVy",
		IV:         "aXZpdml2aXZpdg==",
		PrevHash:   prevHash,
		Hash:       "aGFzaA==",
	}
}

func TestSubmitVersionFirst(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	v := f.version(1, domain.GenesisHash)

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)
	f.documents.On("GetMember", ctx, f.documentID, f.editorID).Return(f.editorMember(), nil)
	f.versions.On("GetLatestVersion", ctx, f.documentID, "b1").Return(nil, nil)
	f.versions.On("SaveVersion", ctx, v).Return(nil)

	saved, err := f.service.SubmitVersion(ctx, f.editorID, v)

	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)
	f.versions.AssertExpectations(t)
}

func TestSubmitVersionExtendsHead(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	head := f.version(3, "cHJldg==")
	v := f.version(4, head.Hash)

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)
	f.documents.On("GetMember", ctx, f.documentID, f.editorID).Return(f.editorMember(), nil)
	f.versions.On("GetLatestVersion", ctx, f.documentID, "b1").Return(head, nil)
	f.versions.On("SaveVersion", ctx, v).Return(nil)

	_, err := f.service.SubmitVersion(ctx, f.editorID, v)
	assert.NoError(t, err)
}

func TestSubmitVersionStale(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	head := f.version(5, "cHJldg==")
	v := f.version(3, "b2xk")

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)
	f.documents.On("GetMember", ctx, f.documentID, f.editorID).Return(f.editorMember(), nil)
	f.versions.On("GetLatestVersion", ctx, f.documentID, "b1").Return(head, nil)

	_, err := f.service.SubmitVersion(ctx, f.editorID, v)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeOldVersionBlock, apperrors.CodeOf(err))
	f.versions.AssertNotCalled(t, "SaveVersion", mock.Anything, mock.Anything)
}

func TestSubmitVersionBrokenLink(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	head := f.version(3, "cHJldg==")
	// Correct next version number but prevHash does not match the head
	v := f.version(4, "Zm9ya2Vk")

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)
	f.documents.On("GetMember", ctx, f.documentID, f.editorID).Return(f.editorMember(), nil)
	f.versions.On("GetLatestVersion", ctx, f.documentID, "b1").Return(head, nil)

	_, err := f.service.SubmitVersion(ctx, f.editorID, v)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeChainBroken, apperrors.CodeOf(err))
}

func TestSubmitVersionNewBlockMustStartAtOne(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	v := f.version(2, "cHJldg==")

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)
	f.documents.On("GetMember", ctx, f.documentID, f.editorID).Return(f.editorMember(), nil)
	f.versions.On("GetLatestVersion", ctx, f.documentID, "b1").Return(nil, nil)

	_, err := f.service.SubmitVersion(ctx, f.editorID, v)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeChainBroken, apperrors.CodeOf(err))
}

func TestSubmitVersionWrongEpoch(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	f.doc.CurrentEpoch = 2
	v := f.version(1, domain.GenesisHash)

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)
	f.documents.On("GetMember", ctx, f.documentID, f.editorID).Return(f.editorMember(), nil)

	_, err := f.service.SubmitVersion(ctx, f.editorID, v)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))
}

func TestSubmitVersionViewerForbidden(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	v := f.version(1, domain.GenesisHash)
	viewer := &domain.DocumentMember{DocumentID: f.documentID, UserID: f.editorID, Role: domain.RoleViewer}

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)
	f.documents.On("GetMember", ctx, f.documentID, f.editorID).Return(viewer, nil)

	_, err := f.service.SubmitVersion(ctx, f.editorID, v)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbiddenAccess, apperrors.CodeOf(err))
}

func TestSubmitVersionLockedByOther(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	v := f.version(1, domain.GenesisHash)

	other := uuid.New()
	_, err := f.sessions.Acquire(ctx, "b1", other)
	require.NoError(t, err)

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)
	f.documents.On("GetMember", ctx, f.documentID, f.editorID).Return(f.editorMember(), nil)

	_, err = f.service.SubmitVersion(ctx, f.editorID, v)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeBlockLocked, apperrors.CodeOf(err))
}

func TestSubmitVersionWithOwnLock(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	v := f.version(1, domain.GenesisHash)

	_, err := f.sessions.Acquire(ctx, "b1", f.editorID)
	require.NoError(t, err)

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)
	f.documents.On("GetMember", ctx, f.documentID, f.editorID).Return(f.editorMember(), nil)
	f.versions.On("GetLatestVersion", ctx, f.documentID, "b1").Return(nil, nil)
	f.versions.On("SaveVersion", ctx, v).Return(nil)

	_, err = f.service.SubmitVersion(ctx, f.editorID, v)
	assert.NoError(t, err)
}

func TestGetBlocksNonMember(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()
	stranger := uuid.New()

	f.documents.On("GetMember", ctx, f.documentID, stranger).Return(nil, nil)

	_, err := f.service.GetBlocks(ctx, f.documentID, stranger)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbiddenAccess, apperrors.CodeOf(err))
}

func TestDeleteBlockOwnerOnly(t *testing.T) {
	f := newBlockFixture(t)
	ctx := context.Background()

	f.documents.On("GetDocument", ctx, f.documentID).Return(f.doc, nil)

	err := f.service.DeleteBlock(ctx, f.documentID, f.editorID, "b1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbiddenAccess, apperrors.CodeOf(err))

	f.versions.On("DeleteBlock", ctx, f.documentID, "b1").Return(nil)
	err = f.service.DeleteBlock(ctx, f.documentID, f.ownerID, "b1")
	assert.NoError(t, err)
}
