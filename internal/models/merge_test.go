package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPerformanceMetrics(t *testing.T) {
	last3 := []MetricRow{
		{Platform: "GA", AdID: "1", TotalCost: 99},
		{Platform: WarehousePlatformFacebook, AdID: "1", TotalCost: 30, TotalRevenue: 45, ROI: 1.5, Leads: 3, Clicks: 40},
		{Platform: WarehousePlatformFacebook, AdID: "1", TotalCost: 1},
	}
	lifetime := []MetricRow{
		{Platform: WarehousePlatformFacebook, AdID: "2", TotalCost: 10},
		{Platform: WarehousePlatformFacebook, AdID: "1", TotalCost: 200, TotalRevenue: 260, ROI: 1.3},
	}

	got := BuildPerformanceMetrics(last3, nil, lifetime, "1")
	assert.Equal(t, WindowMetrics{Spend: 30, Revenue: 45, ROI: 1.5, Leads: 3, Clicks: 40}, got.FB.Last3Days)
	assert.Equal(t, WindowMetrics{}, got.FB.Last7Days)
	assert.Equal(t, 200.0, got.FB.Lifetime.Spend)
	assert.Nil(t, got.GA)

	assert.Equal(t, PerformanceMetrics{}, BuildPerformanceMetrics(last3, nil, lifetime, "missing"))
}

func TestPlatformMetrics_Window(t *testing.T) {
	p := PlatformMetrics{Last7Days: WindowMetrics{ROI: 2}}
	assert.Equal(t, 2.0, p.Window(WindowLast7Days).ROI)
	assert.Equal(t, WindowMetrics{}, p.Window("bogus"))
}
