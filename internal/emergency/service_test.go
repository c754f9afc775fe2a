package emergency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/metrics"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore 内存版 CaseStore，状态转换在锁内做 compare-and-swap
type memStore struct {
	mu    sync.Mutex
	cases map[string]*models.EmergencyCase
}

func newMemStore() *memStore {
	return &memStore{cases: make(map[string]*models.EmergencyCase)}
}

func (m *memStore) OpenCase(_ context.Context, ec *models.EmergencyCase) (*models.EmergencyCase, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cases {
		if c.DependentID == ec.DependentID && !c.Status.Terminal() {
			if ec.Latitude != nil {
				c.Latitude, c.Longitude = ec.Latitude, ec.Longitude
			}
			c.UpdatedAt = ec.CreatedAt
			cp := *c
			return &cp, false, nil
		}
	}
	c := *ec
	c.UpdatedAt = ec.CreatedAt
	m.cases[c.CaseID] = &c
	cp := c
	return &cp, true, nil
}

func (m *memStore) AcceptCase(_ context.Context, caseID, responderID string, from []models.CaseStatus, at time.Time) (*models.EmergencyCase, models.CaseStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok || !statusIn(c.Status, from) {
		return nil, "", nil
	}
	prev := c.Status
	c.Status = models.CaseAcknowledged
	c.ResponderID = &responderID
	c.ResponderLat, c.ResponderLng = nil, nil
	c.AcknowledgedAt = &at
	cp := *c
	return &cp, prev, nil
}

func (m *memStore) UpdateResponderLocation(_ context.Context, caseID string, lat, lng float64, at time.Time) (*models.EmergencyCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok || c.Status != models.CaseAcknowledged {
		return nil, nil
	}
	c.ResponderLat, c.ResponderLng = &lat, &lng
	c.UpdatedAt = at
	cp := *c
	return &cp, nil
}

func (m *memStore) CloseCase(_ context.Context, caseID string, at time.Time) (*models.EmergencyCase, models.CaseStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok || c.Status.Terminal() {
		return nil, "", nil
	}
	prev := c.Status
	c.Status = models.CaseResolved
	c.ResolvedAt = &at
	cp := *c
	return &cp, prev, nil
}

func (m *memStore) GetCase(_ context.Context, caseID string) (*models.EmergencyCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: case_id=%s", models.ErrCaseNotFound, caseID)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetActiveCaseForDependent(_ context.Context, dependentID string) (*models.EmergencyCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cases {
		if c.DependentID == dependentID && !c.Status.Terminal() {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListActiveCases(_ context.Context) ([]*models.EmergencyCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.EmergencyCase
	for _, c := range m.cases {
		if !c.Status.Terminal() {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func statusIn(s models.CaseStatus, set []models.CaseStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func newTestService(policy models.AcceptPolicy) (*Service, *memStore, *metrics.Metrics) {
	store := newMemStore()
	m := metrics.NewNop()
	return NewService(store, policy, m, nil, zap.NewNop()), store, m
}

func openCase(t *testing.T, s *Service) *models.EmergencyCase {
	t.Helper()
	ec, created, err := s.Open(context.Background(), "dep-1", models.CaseKindSOS, &models.GeoPoint{Lat: 13.75, Lng: 100.5})
	require.NoError(t, err)
	require.True(t, created)
	return ec
}

func TestOpen_SecondEventUpdatesActiveCase(t *testing.T) {
	s, _, m := newTestService(models.AcceptFirstWins)
	ctx := context.Background()

	first := openCase(t, s)
	assert.Equal(t, models.CaseDetected, first.Status)

	second, created, err := s.Open(ctx, "dep-1", models.CaseKindFall, &models.GeoPoint{Lat: 13.8, Lng: 100.6})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.CaseID, second.CaseID)
	assert.Equal(t, 13.8, *second.Latitude)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CaseTransitions.WithLabelValues("NONE", "DETECTED")))
}

func TestOpen_AfterResolveCreatesNewCase(t *testing.T) {
	s, _, _ := newTestService(models.AcceptFirstWins)
	ctx := context.Background()

	first := openCase(t, s)
	_, err := s.Close(ctx, first.CaseID)
	require.NoError(t, err)

	second, created, err := s.Open(ctx, "dep-1", models.CaseKindFall, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.CaseID, second.CaseID)
}

func TestAccept_ClearsResponderLocation(t *testing.T) {
	s, _, _ := newTestService(models.AcceptOverwrite)
	ctx := context.Background()
	ec := openCase(t, s)

	_, err := s.Accept(ctx, ec.CaseID, "cg-1")
	require.NoError(t, err)
	_, err = s.Track(ctx, ec.CaseID, models.GeoPoint{Lat: 13.7, Lng: 100.4})
	require.NoError(t, err)

	// overwrite 策略下第二个救援人接单，旧位置清空
	out, err := s.Accept(ctx, ec.CaseID, "cg-2")
	require.NoError(t, err)
	assert.Equal(t, "cg-2", *out.ResponderID)
	assert.Nil(t, out.ResponderLat)
	assert.Nil(t, out.ResponderLng)
	require.NotNil(t, out.AcknowledgedAt)
}

func TestAccept_FirstWinsRejectsSecond(t *testing.T) {
	s, _, _ := newTestService(models.AcceptFirstWins)
	ctx := context.Background()
	ec := openCase(t, s)

	_, err := s.Accept(ctx, ec.CaseID, "cg-1")
	require.NoError(t, err)

	_, err = s.Accept(ctx, ec.CaseID, "cg-2")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.False(t, errors.Is(err, models.ErrCaseAlreadyClosed))

	got, err := s.Get(ctx, ec.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "cg-1", *got.ResponderID)
}

func TestAccept_ConcurrentExactlyOneWinner(t *testing.T) {
	s, _, m := newTestService(models.AcceptFirstWins)
	ctx := context.Background()
	ec := openCase(t, s)

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []string
	var rejected int

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(responder string) {
			defer wg.Done()
			_, err := s.Accept(ctx, ec.CaseID, responder)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, responder)
				return
			}
			if errors.Is(err, models.ErrInvalidTransition) {
				rejected++
			}
		}(fmt.Sprintf("responder-%d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, n-1, rejected)

	got, err := s.Get(ctx, ec.CaseID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], *got.ResponderID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CaseTransitions.WithLabelValues("DETECTED", "ACKNOWLEDGED")))
}

func TestAccept_RequiresResponder(t *testing.T) {
	s, _, _ := newTestService(models.AcceptFirstWins)
	ec := openCase(t, s)

	_, err := s.Accept(context.Background(), ec.CaseID, "")
	assert.ErrorIs(t, err, models.ErrInvalidPayload)
}

func TestAccept_NotFound(t *testing.T) {
	s, _, _ := newTestService(models.AcceptFirstWins)

	_, err := s.Accept(context.Background(), "missing", "cg-1")
	assert.ErrorIs(t, err, models.ErrCaseNotFound)
}

func TestTrack_OnlyWhenAcknowledged(t *testing.T) {
	s, _, _ := newTestService(models.AcceptFirstWins)
	ctx := context.Background()
	ec := openCase(t, s)

	_, err := s.Track(ctx, ec.CaseID, models.GeoPoint{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = s.Accept(ctx, ec.CaseID, "cg-1")
	require.NoError(t, err)

	out, err := s.Track(ctx, ec.CaseID, models.GeoPoint{Lat: 13.7, Lng: 100.4})
	require.NoError(t, err)
	assert.Equal(t, models.CaseAcknowledged, out.Status)
	assert.Equal(t, 13.7, *out.ResponderLat)

	_, err = s.Track(ctx, "missing", models.GeoPoint{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, models.ErrCaseNotFound)

	_, err = s.Track(ctx, ec.CaseID, models.GeoPoint{Lat: 91, Lng: 0})
	assert.ErrorIs(t, err, models.ErrInvalidPayload)
}

func TestClose_FromDetectedAndAcknowledged(t *testing.T) {
	s, _, m := newTestService(models.AcceptFirstWins)
	ctx := context.Background()

	ec := openCase(t, s)
	out, err := s.Close(ctx, ec.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseResolved, out.Status)
	require.NotNil(t, out.ResolvedAt)

	ec2 := openCase(t, s)
	_, err = s.Accept(ctx, ec2.CaseID, "cg-1")
	require.NoError(t, err)
	_, err = s.Close(ctx, ec2.CaseID)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CaseTransitions.WithLabelValues("DETECTED", "RESOLVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CaseTransitions.WithLabelValues("ACKNOWLEDGED", "RESOLVED")))
}

func TestClose_ResolvedCaseIsImmutable(t *testing.T) {
	s, _, _ := newTestService(models.AcceptFirstWins)
	ctx := context.Background()
	ec := openCase(t, s)

	closed, err := s.Close(ctx, ec.CaseID)
	require.NoError(t, err)

	_, err = s.Close(ctx, ec.CaseID)
	assert.ErrorIs(t, err, models.ErrCaseAlreadyClosed)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = s.Accept(ctx, ec.CaseID, "cg-1")
	assert.ErrorIs(t, err, models.ErrCaseAlreadyClosed)

	got, err := s.Get(ctx, ec.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseResolved, got.Status)
	assert.Equal(t, closed.ResolvedAt, got.ResolvedAt)
	assert.Nil(t, got.ResponderID)
}

func TestClose_NotFound(t *testing.T) {
	s, _, _ := newTestService(models.AcceptFirstWins)

	_, err := s.Close(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrCaseNotFound)
}

func TestActiveForDependent(t *testing.T) {
	s, _, _ := newTestService(models.AcceptFirstWins)
	ctx := context.Background()

	got, err := s.ActiveForDependent(ctx, "dep-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	ec := openCase(t, s)
	got, err = s.ActiveForDependent(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, ec.CaseID, got.CaseID)
}

// uuidStore 模拟 case_id 为 UUID 列的数据库：非法 id 直接报错
type uuidStore struct {
	*memStore
}

var errInvalidUUID = errors.New("pq: invalid input syntax for type uuid")

func (u uuidStore) GetCase(ctx context.Context, caseID string) (*models.EmergencyCase, error) {
	if _, err := uuid.Parse(caseID); err != nil {
		return nil, errInvalidUUID
	}
	return u.memStore.GetCase(ctx, caseID)
}

func (u uuidStore) AcceptCase(ctx context.Context, caseID, responderID string, from []models.CaseStatus, at time.Time) (*models.EmergencyCase, models.CaseStatus, error) {
	if _, err := uuid.Parse(caseID); err != nil {
		return nil, "", errInvalidUUID
	}
	return u.memStore.AcceptCase(ctx, caseID, responderID, from, at)
}

func (u uuidStore) UpdateResponderLocation(ctx context.Context, caseID string, lat, lng float64, at time.Time) (*models.EmergencyCase, error) {
	if _, err := uuid.Parse(caseID); err != nil {
		return nil, errInvalidUUID
	}
	return u.memStore.UpdateResponderLocation(ctx, caseID, lat, lng, at)
}

func (u uuidStore) CloseCase(ctx context.Context, caseID string, at time.Time) (*models.EmergencyCase, models.CaseStatus, error) {
	if _, err := uuid.Parse(caseID); err != nil {
		return nil, "", errInvalidUUID
	}
	return u.memStore.CloseCase(ctx, caseID, at)
}

func TestMalformedCaseIDIsNotFound(t *testing.T) {
	s := NewService(uuidStore{newMemStore()}, models.AcceptFirstWins, metrics.NewNop(), nil, zap.NewNop())
	ctx := context.Background()

	for _, id := range []string{"abc", "", "case-1", "123e4567-e89b-12d3-a456"} {
		_, err := s.Get(ctx, id)
		assert.ErrorIs(t, err, models.ErrCaseNotFound, id)
		_, err = s.Accept(ctx, id, "cg-1")
		assert.ErrorIs(t, err, models.ErrCaseNotFound, id)
		_, err = s.Track(ctx, id, models.GeoPoint{Lat: 1, Lng: 1})
		assert.ErrorIs(t, err, models.ErrCaseNotFound, id)
		_, err = s.Close(ctx, id)
		assert.ErrorIs(t, err, models.ErrCaseNotFound, id)
		assert.NotErrorIs(t, err, errInvalidUUID)
	}

	// 格式正确但不存在
	_, err := s.Close(ctx, uuid.New().String())
	assert.ErrorIs(t, err, models.ErrCaseNotFound)
}

func TestOpen_RejectsOutOfRangeLocation(t *testing.T) {
	s, store, _ := newTestService(models.AcceptFirstWins)

	_, _, err := s.Open(context.Background(), "dep-1", models.CaseKindSOS, &models.GeoPoint{Lat: 999, Lng: -999})
	assert.ErrorIs(t, err, models.ErrInvalidPayload)
	assert.Empty(t, store.cases)
}
