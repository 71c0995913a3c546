package models

// BuildPerformanceMetrics assembles the Facebook metrics for adID from the three
// warehouse windows. Windows without a matching row are zero-filled; the result
// never depends on anything but its inputs.
func BuildPerformanceMetrics(last3Days, last7Days, lifetime []MetricRow, adID string) PerformanceMetrics {
	return PerformanceMetrics{
		FB: PlatformMetrics{
			Last3Days: windowFor(last3Days, WarehousePlatformFacebook, adID),
			Last7Days: windowFor(last7Days, WarehousePlatformFacebook, adID),
			Lifetime:  windowFor(lifetime, WarehousePlatformFacebook, adID),
		},
	}
}

// windowFor returns the metrics from the first row tagged with platform for adID.
func windowFor(rows []MetricRow, platform, adID string) WindowMetrics {
	for _, r := range rows {
		if r.Platform != platform || r.AdID != adID {
			continue
		}
		return WindowMetrics{
			Spend:   r.TotalCost,
			Revenue: r.TotalRevenue,
			ROI:     r.ROI,
			Leads:   r.Leads,
			Clicks:  r.Clicks,
		}
	}
	return WindowMetrics{}
}
