package storage

import (
	"context"
	"fmt"
)

// SizeReport 存储占用估算 / SizeReport is a best-effort storage usage estimate.
type SizeReport struct {
	Collections    map[string]CollectionStats
	EstimatedBytes int64
	UsageBytes     int64
	QuotaBytes     int64
	PercentUsed    float64
}

// UsageMB returns UsageBytes in megabytes.
func (r SizeReport) UsageMB() float64 {
	return float64(r.UsageBytes) / (1024 * 1024)
}

// UsageMBString and QuotaMBString format sizes with two decimals.
func (r SizeReport) UsageMBString() string { return megabytes(r.UsageBytes) }

func (r SizeReport) QuotaMBString() string { return megabytes(r.QuotaBytes) }

func megabytes(n int64) string {
	return fmt.Sprintf("%.2f", float64(n)/(1024*1024))
}

// Estimate 统计每个集合的记录数与字节数，并读取数据库文件占用
// Estimate reports per-collection sizes plus the database file usage.
// QuotaBytes comes from max_page_count and PercentUsed is relative to it.
func (s *Store) Estimate(ctx context.Context) (SizeReport, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return SizeReport{}, err
	}

	report := SizeReport{Collections: make(map[string]CollectionStats, 3)}
	for _, c := range []interface {
		Name() string
		Stats(context.Context) (CollectionStats, error)
	}{s.sessions, s.settings, s.groups} {
		st, err := c.Stats(ctx)
		if err != nil {
			return SizeReport{}, err
		}
		report.Collections[c.Name()] = st
		report.EstimatedBytes += st.Bytes
	}

	var pageSize, pageCount, maxPages int64
	for _, p := range []struct {
		pragma string
		dst    *int64
	}{
		{"page_size", &pageSize},
		{"page_count", &pageCount},
		{"max_page_count", &maxPages},
	} {
		if err := db.QueryRowContext(ctx, "PRAGMA "+p.pragma).Scan(p.dst); err != nil {
			return SizeReport{}, &StoreError{Op: "estimate", Err: fmt.Errorf("%s: %w", p.pragma, err)}
		}
	}
	report.UsageBytes = pageSize * pageCount
	report.QuotaBytes = pageSize * maxPages
	if report.QuotaBytes > 0 {
		report.PercentUsed = float64(report.UsageBytes) / float64(report.QuotaBytes) * 100
	}
	return report, nil
}
