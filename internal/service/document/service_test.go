package document

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"securedocs-backend/internal/crypto"
	"securedocs-backend/internal/domain"
	"securedocs-backend/internal/service/epoch"
	apperrors "securedocs-backend/pkg/errors"
	"securedocs-backend/pkg/pagination"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockRepository) GetDocument(ctx context.Context, documentID uuid.UUID) (*domain.Document, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockRepository) ListDocumentsForUser(ctx context.Context, userID uuid.UUID, params *pagination.Params) ([]*domain.Document, int64, error) {
	args := m.Called(ctx, userID, params)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Document), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func (m *MockRepository) AddMember(ctx context.Context, member *domain.DocumentMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockRepository) GetMember(ctx context.Context, documentID, userID uuid.UUID) (*domain.DocumentMember, error) {
	args := m.Called(ctx, documentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentMember), args.Error(1)
}

func (m *MockRepository) GetMembers(ctx context.Context, documentID uuid.UUID) ([]*domain.DocumentMember, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DocumentMember), args.Error(1)
}

func (m *MockRepository) RemoveMember(ctx context.Context, documentID, userID uuid.UUID) error {
	args := m.Called(ctx, documentID, userID)
	return args.Error(0)
}

type MockKeyRecordRepository struct {
	mock.Mock
}

func (m *MockKeyRecordRepository) SaveRecords(ctx context.Context, records []*domain.DocumentKeyRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockKeyRecordRepository) GetRecordsForUser(ctx context.Context, documentID, userID uuid.UUID) ([]*domain.DocumentKeyRecord, error) {
	args := m.Called(ctx, documentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DocumentKeyRecord), args.Error(1)
}

func (m *MockKeyRecordRepository) GetRecord(ctx context.Context, documentID, userID uuid.UUID, epoch int64) (*domain.DocumentKeyRecord, error) {
	args := m.Called(ctx, documentID, userID, epoch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentKeyRecord), args.Error(1)
}

type MockIdentityKeyRepository struct {
	mock.Mock
}

func (m *MockIdentityKeyRepository) GetIdentityKey(ctx context.Context, userID uuid.UUID) (*domain.IdentityKey, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IdentityKey), args.Error(1)
}

// epochDocRepo adapts MockRepository to the epoch service's narrower interface
type epochDocRepo struct {
	repo *MockRepository
}

func (r *epochDocRepo) GetDocument(ctx context.Context, documentID uuid.UUID) (*domain.Document, error) {
	return r.repo.GetDocument(ctx, documentID)
}

func (r *epochDocRepo) AdvanceEpoch(ctx context.Context, documentID uuid.UUID, fromEpoch int64) error {
	args := r.repo.Called(ctx, documentID, fromEpoch)
	return args.Error(0)
}

func (r *epochDocRepo) GetMembers(ctx context.Context, documentID uuid.UUID) ([]*domain.DocumentMember, error) {
	return r.repo.GetMembers(ctx, documentID)
}

type docFixture struct {
	repo    *MockRepository
	keyRepo *MockKeyRecordRepository
	idRepo  *MockIdentityKeyRepository
	service *Service
	ownerID uuid.UUID
	owner   *crypto.IdentityKeyPair
	drk     []byte
	manager *epoch.Manager
}

func newDocFixture(t *testing.T) *docFixture {
	t.Helper()

	owner, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	drk, err := crypto.GenerateRootKey()
	require.NoError(t, err)

	f := &docFixture{
		repo:    new(MockRepository),
		keyRepo: new(MockKeyRecordRepository),
		idRepo:  new(MockIdentityKeyRepository),
		ownerID: uuid.New(),
		owner:   owner,
		drk:     drk,
		manager: epoch.NewManager(),
	}
	epochService := epoch.NewService(f.keyRepo, &epochDocRepo{repo: f.repo}, f.idRepo)
	f.service = NewService(f.repo, epochService)
	return f
}

func (f *docFixture) ownerIdentity() *domain.IdentityKey {
	signKey, encKey := f.owner.PublicIdentity()
	return &domain.IdentityKey{UserID: f.ownerID, SigningKey: signKey, EncryptionKey: encKey}
}

// ownerRecord creates a key record sealed to the owner themselves
func (f *docFixture) ownerRecord(t *testing.T, documentID uuid.UUID, epochNum int64) *domain.DocumentKeyRecord {
	t.Helper()
	_, encKey := f.owner.PublicIdentity()
	record, err := f.manager.CreateDistribution(f.drk, epochNum, documentID, f.ownerID, encKey, f.ownerID, f.owner.SigningPrivate)
	require.NoError(t, err)
	return record
}

func TestCreateDocument(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	documentID := uuid.New()

	f.repo.On("CreateDocument", ctx, mock.MatchedBy(func(d *domain.Document) bool {
		return d.DocumentID == documentID && d.CurrentEpoch == 0
	})).Return(nil)
	f.repo.On("AddMember", ctx, mock.MatchedBy(func(m *domain.DocumentMember) bool {
		return m.UserID == f.ownerID && m.Role == domain.RoleOwner
	})).Return(nil)
	f.repo.On("GetDocument", ctx, documentID).Return(
		&domain.Document{DocumentID: documentID, OwnerID: f.ownerID, CurrentEpoch: 0}, nil)
	f.repo.On("GetMembers", ctx, documentID).Return(
		[]*domain.DocumentMember{{UserID: f.ownerID, Role: domain.RoleOwner}}, nil)
	f.idRepo.On("GetIdentityKey", ctx, f.ownerID).Return(f.ownerIdentity(), nil)
	f.keyRepo.On("SaveRecords", ctx, mock.Anything).Return(nil)

	record := f.ownerRecord(t, documentID, 0)

	doc, err := f.service.CreateDocument(ctx, &CreateDocumentInput{
		DocumentID: documentID,
		OwnerID:    f.ownerID,
		Title:      "Design notes",
		KeyRecords: []*domain.DocumentKeyRecord{record},
	})

	require.NoError(t, err)
	assert.Equal(t, documentID, doc.DocumentID)
	assert.Equal(t, int64(0), doc.CurrentEpoch)
	f.keyRepo.AssertExpectations(t)
}

func TestCreateDocumentRequiresKeyRecords(t *testing.T) {
	f := newDocFixture(t)

	_, err := f.service.CreateDocument(context.Background(), &CreateDocumentInput{
		DocumentID: uuid.New(),
		OwnerID:    f.ownerID,
		Title:      "Design notes",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
}

func TestShareDocument(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	documentID := uuid.New()
	newUserID := uuid.New()

	doc := &domain.Document{DocumentID: documentID, OwnerID: f.ownerID, CurrentEpoch: 3}
	f.repo.On("GetDocument", ctx, documentID).Return(doc, nil)
	f.repo.On("GetMember", ctx, documentID, newUserID).Return(nil, nil)
	f.idRepo.On("GetIdentityKey", ctx, f.ownerID).Return(f.ownerIdentity(), nil)
	f.keyRepo.On("SaveRecords", ctx, mock.Anything).Return(nil)
	f.repo.On("AddMember", ctx, mock.MatchedBy(func(m *domain.DocumentMember) bool {
		return m.UserID == newUserID && m.Role == domain.RoleEditor
	})).Return(nil)

	recipient, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	_, recipientEncKey := recipient.PublicIdentity()
	record, err := f.manager.CreateDistribution(f.drk, 3, documentID, newUserID, recipientEncKey, f.ownerID, f.owner.SigningPrivate)
	require.NoError(t, err)

	err = f.service.ShareDocument(ctx, &ShareInput{
		DocumentID: documentID,
		OwnerID:    f.ownerID,
		UserID:     newUserID,
		Role:       domain.RoleEditor,
		KeyRecord:  record,
	})

	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestShareDocumentWrongEpochRecord(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	documentID := uuid.New()
	newUserID := uuid.New()

	doc := &domain.Document{DocumentID: documentID, OwnerID: f.ownerID, CurrentEpoch: 3}
	f.repo.On("GetDocument", ctx, documentID).Return(doc, nil)
	f.repo.On("GetMember", ctx, documentID, newUserID).Return(nil, nil)

	recipient, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	_, recipientEncKey := recipient.PublicIdentity()
	// Record for a stale epoch
	record, err := f.manager.CreateDistribution(f.drk, 2, documentID, newUserID, recipientEncKey, f.ownerID, f.owner.SigningPrivate)
	require.NoError(t, err)

	err = f.service.ShareDocument(ctx, &ShareInput{
		DocumentID: documentID,
		OwnerID:    f.ownerID,
		UserID:     newUserID,
		Role:       domain.RoleViewer,
		KeyRecord:  record,
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
	f.repo.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything)
}

func TestShareDocumentNonOwner(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	documentID := uuid.New()
	mallory := uuid.New()

	doc := &domain.Document{DocumentID: documentID, OwnerID: f.ownerID, CurrentEpoch: 0}
	f.repo.On("GetDocument", ctx, documentID).Return(doc, nil)

	err := f.service.ShareDocument(ctx, &ShareInput{
		DocumentID: documentID,
		OwnerID:    mallory,
		UserID:     uuid.New(),
		Role:       domain.RoleEditor,
		KeyRecord:  &domain.DocumentKeyRecord{UserID: uuid.Nil},
	})

	require.Error(t, err)
}

func TestRevokeAccessRotates(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	documentID := uuid.New()
	revokedID := uuid.New()

	doc := &domain.Document{DocumentID: documentID, OwnerID: f.ownerID, CurrentEpoch: 1}
	f.repo.On("GetDocument", ctx, documentID).Return(doc, nil)
	f.repo.On("GetMember", ctx, documentID, revokedID).Return(
		&domain.DocumentMember{DocumentID: documentID, UserID: revokedID, Role: domain.RoleEditor}, nil)
	f.repo.On("RemoveMember", ctx, documentID, revokedID).Return(nil)
	// After removal only the owner remains
	f.repo.On("GetMembers", ctx, documentID).Return(
		[]*domain.DocumentMember{{UserID: f.ownerID, Role: domain.RoleOwner}}, nil)
	f.idRepo.On("GetIdentityKey", ctx, f.ownerID).Return(f.ownerIdentity(), nil)
	f.keyRepo.On("SaveRecords", ctx, mock.Anything).Return(nil)
	f.repo.On("AdvanceEpoch", ctx, documentID, int64(1)).Return(nil)

	rotation := f.ownerRecord(t, documentID, 2)

	err := f.service.RevokeAccess(ctx, &RevokeInput{
		DocumentID:      documentID,
		OwnerID:         f.ownerID,
		UserID:          revokedID,
		RotationRecords: []*domain.DocumentKeyRecord{rotation},
	})

	require.NoError(t, err)
	f.repo.AssertCalled(t, "AdvanceEpoch", ctx, documentID, int64(1))
}

func TestRevokeOwnerSelf(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	documentID := uuid.New()

	doc := &domain.Document{DocumentID: documentID, OwnerID: f.ownerID, CurrentEpoch: 0}
	f.repo.On("GetDocument", ctx, documentID).Return(doc, nil)

	err := f.service.RevokeAccess(ctx, &RevokeInput{
		DocumentID: documentID,
		OwnerID:    f.ownerID,
		UserID:     f.ownerID,
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
}

func TestGetDocumentNonMember(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	documentID := uuid.New()
	stranger := uuid.New()

	f.repo.On("GetMember", ctx, documentID, stranger).Return(nil, nil)

	_, err := f.service.GetDocument(ctx, documentID, stranger)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbiddenAccess, apperrors.CodeOf(err))
}
