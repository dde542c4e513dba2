package savedsearch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"astroscope/internal/types"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(ctx context.Context, s *types.SavedSearch) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockStore) ListByUser(ctx context.Context, namespace, userID string, limit int) ([]*types.SavedSearch, error) {
	args := m.Called(ctx, namespace, userID, limit)
	out, _ := args.Get(0).([]*types.SavedSearch)
	return out, args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	svc := New(store, Config{Namespace: "tests", ListLimit: 5}, nil)
	svc.now = func() time.Time { return fixedNow }
	svc.newID = func() string { return "search-1" }
	return svc
}

func requireCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestSave_StoresVerbatim(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	query := json.RawMessage(`{"body":"Mars","sign":"Aries"}`)
	data := json.RawMessage(`[{"date":"1990-01-01"}]`)

	store.On("Save", ctx, mock.MatchedBy(func(s *types.SavedSearch) bool {
		return s.ID == "search-1" &&
			s.Namespace == "tests" &&
			s.UserID == "alice" &&
			string(s.Query) == string(query) &&
			string(s.Data) == string(data) &&
			s.SavedAt.Equal(fixedNow)
	})).Return(nil)

	id, err := newTestService(store).Save(ctx, "  alice ", query, data)
	require.NoError(t, err)
	assert.Equal(t, "search-1", id)
	store.AssertExpectations(t)
}

func TestSave_Validation(t *testing.T) {
	valid := json.RawMessage(`{}`)
	tests := []struct {
		name     string
		userID   string
		query    json.RawMessage
		data     json.RawMessage
		wantCode types.ErrorCode
	}{
		{"empty user", "", valid, valid, types.ErrCodeValidationInvalidUserID},
		{"blank user", "   ", valid, valid, types.ErrCodeValidationInvalidUserID},
		{"long user", strings.Repeat("u", MaxUserIDLength+1), valid, valid, types.ErrCodeValidationInvalidUserID},
		{"missing query", "bob", nil, valid, types.ErrCodeValidationMissingField},
		{"null data", "bob", valid, json.RawMessage("null"), types.ErrCodeValidationMissingField},
		{"malformed data", "bob", valid, json.RawMessage("{"), types.ErrCodeValidationInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			_, err := newTestService(store).Save(context.Background(), tt.userID, tt.query, tt.data)
			requireCode(t, err, tt.wantCode)
			store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestSave_StoreFailureIsDatabaseError(t *testing.T) {
	store := new(mockStore)
	boom := errors.New("disk full")
	store.On("Save", mock.Anything, mock.Anything).Return(boom)

	_, err := newTestService(store).Save(context.Background(), "bob", json.RawMessage(`1`), json.RawMessage(`2`))
	requireCode(t, err, types.ErrCodeInternalDB)
	assert.ErrorIs(t, err, boom)
}

func TestSave_StoreAppErrorPassesThrough(t *testing.T) {
	store := new(mockStore)
	want := types.NewAppError(types.ErrCodeUnavailableStore, "down", nil)
	store.On("Save", mock.Anything, mock.Anything).Return(want)

	_, err := newTestService(store).Save(context.Background(), "bob", json.RawMessage(`1`), json.RawMessage(`2`))
	assert.Same(t, want, err)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	recs := []*types.SavedSearch{{ID: "b"}, {ID: "a"}}
	store.On("ListByUser", ctx, "tests", "carol", 5).Return(recs, nil)

	got, err := newTestService(store).List(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	store := new(mockStore)
	store.On("ListByUser", mock.Anything, "tests", "dave", 5).Return(nil, nil)

	got, err := newTestService(store).List(context.Background(), "dave")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestList_ContextErrors(t *testing.T) {
	store := new(mockStore)
	store.On("ListByUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded)

	_, err := newTestService(store).List(context.Background(), "erin")
	requireCode(t, err, types.ErrCodeUnavailableTimeout)
}

func TestUnavailable(t *testing.T) {
	svc := NewUnavailable("STORE_DRIVER not set", nil)
	assert.False(t, svc.Available())

	_, err := svc.Save(context.Background(), "bob", json.RawMessage(`1`), json.RawMessage(`2`))
	requireCode(t, err, types.ErrCodeUnavailableStore)

	_, err = svc.List(context.Background(), "")
	requireCode(t, err, types.ErrCodeUnavailableStore)

	probe := NewHealthProbe(svc)
	assert.Equal(t, "store", probe.Name())
	assert.EqualError(t, probe.Check(context.Background()), "STORE_DRIVER not set")
}

func TestHealthProbe_PingsStore(t *testing.T) {
	store := new(mockStore)
	store.On("Ping", mock.Anything).Return(errors.New("refused")).Once()
	store.On("Ping", mock.Anything).Return(nil).Once()

	probe := NewHealthProbe(newTestService(store))
	assert.EqualError(t, probe.Check(context.Background()), "refused")
	assert.NoError(t, probe.Check(context.Background()))
}
