package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/emergency"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/evaluator"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/metrics"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/notifier"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/recipient"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ============================================
// 测试用内存存储
// ============================================

type fakeDB struct {
	mu         sync.Mutex
	dependents map[string]*models.Dependent
	configs    map[string]*models.AlertConfig
	readings   []*models.Reading
	caregivers map[string]*models.Recipient // dependent_id -> 照护人
	admins     []*models.Recipient          // 按创建时间排序
	cases      map[string]*models.EmergencyCase
	readingErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		dependents: map[string]*models.Dependent{
			"dep-1": {DependentID: "dep-1", Name: "Somchai", IsActive: true},
		},
		configs:    map[string]*models.AlertConfig{},
		caregivers: map[string]*models.Recipient{},
		cases:      map[string]*models.EmergencyCase{},
	}
}

func (f *fakeDB) GetDependent(_ context.Context, id string) (*models.Dependent, error) {
	if d, ok := f.dependents[id]; ok && d.IsActive {
		return d, nil
	}
	return nil, models.ErrDependentNotFound
}

func (f *fakeDB) GetAlertConfig(_ context.Context, id string) (*models.AlertConfig, error) {
	return f.configs[id], nil
}

func (f *fakeDB) CreateReading(_ context.Context, r *models.Reading) error {
	if f.readingErr != nil {
		return f.readingErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, r)
	return nil
}

func (f *fakeDB) CaregiverAddress(_ context.Context, id string) (*models.Recipient, error) {
	if r, ok := f.caregivers[id]; ok {
		return r, nil
	}
	return nil, models.ErrRecipientNotFound
}

func (f *fakeDB) FallbackAdminAddress(context.Context) (*models.Recipient, error) {
	if len(f.admins) == 0 {
		return nil, models.ErrRecipientNotFound
	}
	return f.admins[0], nil
}

func (f *fakeDB) OpenCase(_ context.Context, ec *models.EmergencyCase) (*models.EmergencyCase, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cases {
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
	f.cases[c.CaseID] = &c
	cp := c
	return &cp, true, nil
}

func (f *fakeDB) AcceptCase(context.Context, string, string, []models.CaseStatus, time.Time) (*models.EmergencyCase, models.CaseStatus, error) {
	return nil, "", errors.New("not used")
}

func (f *fakeDB) UpdateResponderLocation(context.Context, string, float64, float64, time.Time) (*models.EmergencyCase, error) {
	return nil, errors.New("not used")
}

func (f *fakeDB) CloseCase(_ context.Context, id string, at time.Time) (*models.EmergencyCase, models.CaseStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok || c.Status.Terminal() {
		return nil, "", nil
	}
	prev := c.Status
	c.Status, c.ResolvedAt = models.CaseResolved, &at
	cp := *c
	return &cp, prev, nil
}

func (f *fakeDB) GetCase(_ context.Context, id string) (*models.EmergencyCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cases[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: %s", models.ErrCaseNotFound, id)
}

func (f *fakeDB) GetActiveCaseForDependent(_ context.Context, id string) (*models.EmergencyCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cases {
		if c.DependentID == id && !c.Status.Terminal() {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDB) ListActiveCases(context.Context) ([]*models.EmergencyCase, error) {
	return nil, nil
}

type sentMessage struct {
	address string
	alert   models.Alert
}

type fakeChannel struct {
	sent []sentMessage
	err  error
}

func (c *fakeChannel) Send(_ context.Context, address string, alert models.Alert) error {
	c.sent = append(c.sent, sentMessage{address, alert})
	return c.err
}

type fakeLatest struct {
	put []*models.Reading
	err error
}

func (l *fakeLatest) Put(_ context.Context, r *models.Reading) error {
	l.put = append(l.put, r)
	return l.err
}

type pipeline struct {
	db      *fakeDB
	channel *fakeChannel
	latest  *fakeLatest
	metrics *metrics.Metrics
	ingest  *IngestService
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := zap.NewNop()
	db := newFakeDB()
	ch := &fakeChannel{}
	latest := &fakeLatest{}
	m := metrics.NewNop()

	eval := evaluator.NewEvaluator(db, db, db, models.DefaultAlertDefaults(), logger)
	dispatcher := notifier.NewDispatcher(recipient.NewResolver(db, logger), ch, time.Second, m, nil, logger)
	cases := emergency.NewService(db, models.AcceptFirstWins, m, nil, logger)

	return &pipeline{
		db:      db,
		channel: ch,
		latest:  latest,
		metrics: m,
		ingest:  NewIngestService(eval, db, cases, dispatcher, latest, m, logger),
	}
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

// ============================================
// 场景测试
// ============================================

func TestIngest_HeartRateAbnormalDispatches(t *testing.T) {
	p := newPipeline(t)
	p.db.configs["dep-1"] = &models.AlertConfig{HeartRateMin: intPtr(50), HeartRateMax: intPtr(120)}
	p.db.caregivers["dep-1"] = &models.Recipient{Address: "U-care", Source: models.RecipientCaregiver}

	res, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindHeartRate, &models.DevicePayload{BPM: intPtr(140)})
	require.NoError(t, err)

	assert.Equal(t, models.StatusAbnormalHigh, res.Reading.Status)
	assert.True(t, res.Abnormal)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, models.DispatchSent, res.Outcomes[0].Status)
	require.Len(t, p.channel.sent, 1)
	assert.Equal(t, "U-care", p.channel.sent[0].address)
	assert.Equal(t, models.AlertHeartRate, p.channel.sent[0].alert.Kind)

	assert.Len(t, p.db.readings, 1)
	assert.Len(t, p.latest.put, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.ReadingsIngested.WithLabelValues("heartrate", "abnormal_high")))
}

func TestIngest_NormalReadingDoesNotDispatch(t *testing.T) {
	p := newPipeline(t)
	p.db.caregivers["dep-1"] = &models.Recipient{Address: "U-care"}

	res, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindTemperature, &models.DevicePayload{Temperature: floatPtr(36.6)})
	require.NoError(t, err)
	assert.False(t, res.Abnormal)
	assert.Empty(t, res.Outcomes)
	assert.Empty(t, p.channel.sent)
}

func TestIngest_GeofenceLevel2(t *testing.T) {
	p := newPipeline(t)
	p.db.configs["dep-1"] = &models.AlertConfig{
		GeofenceLat: floatPtr(13.7563),
		GeofenceLng: floatPtr(100.5018),
		RadiusLv1:   intPtr(100),
		RadiusLv2:   intPtr(500),
	}
	p.db.caregivers["dep-1"] = &models.Recipient{Address: "U-care"}

	// 纬度方向约 600 m
	lat := 13.7563 + 600.0/111195.0
	res, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindLocation, &models.DevicePayload{
		Latitude:  floatPtr(lat),
		Longitude: floatPtr(100.5018),
		Battery:   intPtr(80),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOutsideZone2, res.Reading.Status)
	require.Len(t, p.channel.sent, 1)
	assert.Contains(t, p.channel.sent[0].alert.Message, "outside safe zone (level 2)")
}

func TestIngest_SOSOpensThenUpdatesCase(t *testing.T) {
	p := newPipeline(t)
	p.db.caregivers["dep-1"] = &models.Recipient{Address: "U-care"}
	ctx := context.Background()

	first, err := p.ingest.Ingest(ctx, "dep-1", models.ReadingKindSOS, &models.DevicePayload{
		Latitude: floatPtr(13.75), Longitude: floatPtr(100.5),
	})
	require.NoError(t, err)
	assert.True(t, first.CaseCreated)
	assert.Equal(t, models.CaseDetected, first.Case.Status)
	assert.Nil(t, first.Reading)

	second, err := p.ingest.Ingest(ctx, "dep-1", models.ReadingKindSOS, &models.DevicePayload{
		Latitude: floatPtr(13.76), Longitude: floatPtr(100.51),
		Timestamp: time.Now().Add(5 * time.Second).Unix(),
	})
	require.NoError(t, err)
	assert.False(t, second.CaseCreated)
	assert.Equal(t, first.Case.CaseID, second.Case.CaseID)
	assert.Equal(t, 13.76, *second.Case.Latitude)

	assert.Len(t, p.db.cases, 1)
	assert.Empty(t, p.db.readings)
	// 每次按键都通知
	require.Len(t, p.channel.sent, 2)
	assert.Equal(t, models.AlertSOS, p.channel.sent[1].alert.Kind)
	assert.Equal(t, first.Case.CaseID, p.channel.sent[1].alert.CaseID)
}

func TestIngest_SOSUnknownDependent(t *testing.T) {
	p := newPipeline(t)

	_, err := p.ingest.Ingest(context.Background(), "ghost", models.ReadingKindSOS, &models.DevicePayload{})
	assert.ErrorIs(t, err, models.ErrDependentNotFound)
	assert.Empty(t, p.db.cases)
}

func TestIngest_SOSRejectsBadCoordinates(t *testing.T) {
	p := newPipeline(t)
	p.db.caregivers["dep-1"] = &models.Recipient{Address: "U-care"}
	ctx := context.Background()

	for _, payload := range []*models.DevicePayload{
		{Latitude: floatPtr(999), Longitude: floatPtr(-999)},
		{Latitude: floatPtr(13.75), Longitude: floatPtr(181)},
		{Latitude: floatPtr(13.75)},
	} {
		_, err := p.ingest.Ingest(ctx, "dep-1", models.ReadingKindSOS, payload)
		assert.ErrorIs(t, err, models.ErrInvalidPayload)
	}
	assert.Empty(t, p.db.cases)
	assert.Empty(t, p.channel.sent)

	// 不带坐标的求救仍然开案
	res, err := p.ingest.Ingest(ctx, "dep-1", models.ReadingKindSOS, &models.DevicePayload{})
	require.NoError(t, err)
	assert.True(t, res.CaseCreated)
	assert.Nil(t, res.Case.Latitude)
}

func TestIngest_FallStoresReadingAndOpensCase(t *testing.T) {
	p := newPipeline(t)
	p.db.caregivers["dep-1"] = &models.Recipient{Address: "U-care"}

	res, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindFall, &models.DevicePayload{
		X: floatPtr(2.1), Y: floatPtr(-15.4), Z: floatPtr(0.7),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnconfirmed, res.Reading.Status)
	require.NotNil(t, res.Case)
	assert.Equal(t, models.CaseKindFall, res.Case.Kind)
	assert.True(t, res.CaseCreated)
	require.Len(t, p.channel.sent, 1)
	assert.Contains(t, p.channel.sent[0].alert.Message, "may have fallen")
}

func TestIngest_FallbackToEarliestAdmin(t *testing.T) {
	p := newPipeline(t)
	p.db.admins = []*models.Recipient{
		{Address: "U-admin-1", Source: models.RecipientAdmin, OwnerID: "adm-1"},
		{Address: "U-admin-2", Source: models.RecipientAdmin, OwnerID: "adm-2"},
	}

	res, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindHeartRate, &models.DevicePayload{BPM: intPtr(30)})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, models.DispatchSent, res.Outcomes[0].Status)
	assert.Equal(t, models.RecipientAdmin, res.Outcomes[0].Recipient.Source)
	assert.Equal(t, "U-admin-1", p.channel.sent[0].address)
}

func TestIngest_NoRecipientSkipsButKeepsReading(t *testing.T) {
	p := newPipeline(t)

	res, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindHeartRate, &models.DevicePayload{BPM: intPtr(140)})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, models.DispatchSkippedNoRecipient, res.Outcomes[0].Status)
	assert.Empty(t, p.channel.sent)
	assert.Len(t, p.db.readings, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.Dispatches.WithLabelValues("heart_rate", "skipped_no_recipient")))
}

func TestIngest_ChannelFailureIsSoft(t *testing.T) {
	p := newPipeline(t)
	p.db.caregivers["dep-1"] = &models.Recipient{Address: "U-care"}
	p.channel.err = errors.New("LINE push API error")

	res, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindHeartRate, &models.DevicePayload{BPM: intPtr(140)})
	require.NoError(t, err)
	assert.Equal(t, models.DispatchChannelError, res.Outcomes[0].Status)
	assert.ErrorIs(t, res.Outcomes[0].Err, models.ErrChannelUnavailable)
	assert.Len(t, p.db.readings, 1)
}

func TestIngest_CacheFailureIsSoft(t *testing.T) {
	p := newPipeline(t)
	p.latest.err = errors.New("redis down")

	res, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindHeartRate, &models.DevicePayload{BPM: intPtr(70)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNormal, res.Reading.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.SoftFailures.WithLabelValues("latest_cache")))
}

func TestIngest_StoreFailurePropagates(t *testing.T) {
	p := newPipeline(t)
	dbErr := errors.New("connection reset")
	p.db.readingErr = dbErr

	_, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindHeartRate, &models.DevicePayload{BPM: intPtr(140)})
	assert.ErrorIs(t, err, dbErr)
	assert.Empty(t, p.channel.sent)
}

func TestIngest_InvalidPayload(t *testing.T) {
	p := newPipeline(t)

	_, err := p.ingest.Ingest(context.Background(), "dep-1", models.ReadingKindLocation, &models.DevicePayload{Latitude: floatPtr(13)})
	assert.ErrorIs(t, err, models.ErrInvalidPayload)
}
