package maintenance

import (
	"testing"
	"time"

	"motoshop/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultRules())
}

func TestDetect_OilChangeFromPartName(t *testing.T) {
	e := newTestEngine()

	found := e.Detect([]domain.PartLine{{PartID: "p1", Name: "Nhớt Motul 10W40", Quantity: 1}}, nil, "")

	assert.True(t, found.Has(domain.MaintenanceOilChange))
	assert.False(t, found.Has(domain.MaintenanceGearboxOil))
	assert.Len(t, found, 1)
}

func TestDetect_GearboxOilDoesNotCountAsEngineOil(t *testing.T) {
	e := newTestEngine()

	found := e.Detect(nil, []domain.ServiceLine{{Description: "Thay nhớt hộp số", Quantity: 1}}, "")

	assert.True(t, found.Has(domain.MaintenanceGearboxOil))
	assert.False(t, found.Has(domain.MaintenanceOilChange))
}

func TestDetect_IgnoresCaseAndDiacritics(t *testing.T) {
	e := newTestEngine()

	found := e.Detect(nil, nil, "khach yeu cau VE SINH KIM PHUN")

	assert.True(t, found.Has(domain.MaintenanceThrottleCleaning))
}

func TestDetect_MultipleClasses(t *testing.T) {
	e := newTestEngine()

	found := e.Detect(
		[]domain.PartLine{{Name: "Nhớt máy Castrol"}, {Name: "Dầu láp Honda"}},
		[]domain.ServiceLine{{Description: "Súc béc xăng"}},
		"",
	)

	assert.Len(t, found, 3)
}

func TestDetect_NothingMatches(t *testing.T) {
	e := newTestEngine()

	found := e.Detect([]domain.PartLine{{Name: "Má phanh trước"}}, []domain.ServiceLine{{Description: "Cân chỉnh xích"}}, "xe kêu khi phanh")

	assert.Empty(t, found)
}

func TestCheck_DueSoonAndOverdue(t *testing.T) {
	e := newTestEngine()
	v := &domain.Vehicle{
		CurrentKm: 21000,
		LastMaintenances: map[domain.MaintenanceType]domain.MaintenanceRecord{
			domain.MaintenanceOilChange:        {Km: 19600},
			domain.MaintenanceGearboxOil:       {Km: 15000},
			domain.MaintenanceThrottleCleaning: {Km: 5000},
		},
	}

	warnings := e.Check(v)

	require.Len(t, warnings, 2)
	assert.Equal(t, domain.MaintenanceGearboxOil, warnings[0].Type)
	assert.True(t, warnings[0].IsOverdue)
	assert.Equal(t, 6000, warnings[0].KmSinceLastService)
	assert.Equal(t, -1000, warnings[0].KmRemaining)

	assert.Equal(t, domain.MaintenanceOilChange, warnings[1].Type)
	assert.True(t, warnings[1].IsDueSoon)
	assert.False(t, warnings[1].IsOverdue)
	assert.Equal(t, 100, warnings[1].KmRemaining)
}

func TestCheck_BoundaryAtInterval(t *testing.T) {
	e := newTestEngine()
	v := &domain.Vehicle{
		CurrentKm: 1500,
		LastMaintenances: map[domain.MaintenanceType]domain.MaintenanceRecord{
			domain.MaintenanceOilChange:        {Km: 0},
			domain.MaintenanceGearboxOil:       {Km: 1500},
			domain.MaintenanceThrottleCleaning: {Km: 1500},
		},
	}

	warnings := e.Check(v)

	require.Len(t, warnings, 1)
	assert.True(t, warnings[0].IsOverdue)
	assert.False(t, warnings[0].IsDueSoon)
}

func TestCheck_OverdueSortedByKmRemaining(t *testing.T) {
	e := newTestEngine()
	v := &domain.Vehicle{CurrentKm: 30000}

	warnings := e.Check(v)

	require.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.True(t, w.IsOverdue)
	}
	assert.Equal(t, domain.MaintenanceOilChange, warnings[0].Type)
	assert.Equal(t, domain.MaintenanceGearboxOil, warnings[1].Type)
	assert.Equal(t, domain.MaintenanceThrottleCleaning, warnings[2].Type)
}

func TestApply_UpdatesDetectedAndAlwaysKm(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	old := domain.MaintenanceRecord{Km: 8000, Date: now.AddDate(0, -3, 0)}
	v := domain.Vehicle{
		CurrentKm: 9000,
		LastMaintenances: map[domain.MaintenanceType]domain.MaintenanceRecord{
			domain.MaintenanceGearboxOil: old,
		},
	}

	updated := Apply(v, Set{domain.MaintenanceOilChange: {}}, 9500, now)

	assert.Equal(t, 9500, updated.CurrentKm)
	assert.Equal(t, domain.MaintenanceRecord{Km: 9500, Date: now}, updated.LastMaintenances[domain.MaintenanceOilChange])
	assert.Equal(t, old, updated.LastMaintenances[domain.MaintenanceGearboxOil])

	// input untouched
	assert.Equal(t, 9000, v.CurrentKm)
	_, ok := v.LastMaintenances[domain.MaintenanceOilChange]
	assert.False(t, ok)

	unchanged := Apply(v, Set{}, 9100, now)
	assert.Equal(t, 9100, unchanged.CurrentKm)
	assert.Len(t, unchanged.LastMaintenances, 1)
}

func TestWithOverrides(t *testing.T) {
	rules := WithOverrides(DefaultRules(), map[string]Override{
		"oil_change": {IntervalKm: 2000},
	})

	for _, r := range rules {
		if r.Type == domain.MaintenanceOilChange {
			assert.Equal(t, 2000, r.IntervalKm)
			assert.Equal(t, 1300, r.WarningKm)
		}
	}
	assert.Equal(t, 1500, DefaultRules()[0].IntervalKm)
}
