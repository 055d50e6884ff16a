package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rizrmd/travel-sub003/pkg/metrics"
)

// InactivityCutoff is how long since last login before a user counts as
// inactive for churn purposes.
const InactivityCutoff = 30 * 24 * time.Hour

// OpsStatsProvider reads per-tenant business counters from the operational
// schema the CRUD services own (users, jamaah, bookings, api_requests,
// error_logs, sessions live in the same Postgres cluster). It backs both the
// tenant metric collection pass and the churn rule.
type OpsStatsProvider struct {
	db *gorm.DB
}

// NewOpsStatsProvider creates an operational stats provider
func NewOpsStatsProvider(conn *Connection) *OpsStatsProvider {
	return &OpsStatsProvider{db: conn.DB()}
}

// CollectTenantStats reads one tenant's current business counters
func (p *OpsStatsProvider) CollectTenantStats(ctx context.Context, tenantID uuid.UUID) (*metrics.TenantStats, error) {
	stats := &metrics.TenantStats{TenantID: tenantID}
	hourAgo := time.Now().UTC().Add(-time.Hour)

	counters := []struct {
		dest  interface{}
		query string
		args  []interface{}
	}{
		{&stats.UserCount,
			"SELECT COUNT(*) FROM users WHERE tenant_id = ? AND deleted_at IS NULL",
			[]interface{}{tenantID}},
		{&stats.JamaahCount,
			"SELECT COUNT(*) FROM jamaah WHERE tenant_id = ? AND deleted_at IS NULL",
			[]interface{}{tenantID}},
		{&stats.Revenue,
			"SELECT COALESCE(SUM(amount), 0) FROM bookings WHERE tenant_id = ? AND status = 'paid' AND created_at >= ?",
			[]interface{}{tenantID, time.Now().UTC().Add(-30 * 24 * time.Hour)}},
		{&stats.ErrorCount,
			"SELECT COUNT(*) FROM error_logs WHERE tenant_id = ? AND created_at >= ?",
			[]interface{}{tenantID, hourAgo}},
		{&stats.APICallCount,
			"SELECT COUNT(*) FROM api_requests WHERE tenant_id = ? AND created_at >= ?",
			[]interface{}{tenantID, hourAgo}},
		{&stats.StorageUsedMB,
			"SELECT COALESCE(SUM(size_bytes), 0) / 1048576.0 FROM uploads WHERE tenant_id = ?",
			[]interface{}{tenantID}},
		{&stats.ActiveSessions,
			"SELECT COUNT(*) FROM sessions WHERE tenant_id = ? AND expires_at > NOW()",
			[]interface{}{tenantID}},
	}

	for _, c := range counters {
		if err := p.db.WithContext(ctx).Raw(c.query, c.args...).Scan(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to collect tenant stats for %s: %w", tenantID, err)
		}
	}

	return stats, nil
}

// UserCounts returns the total and inactive user counts for a tenant.
// Inactive means no login within the inactivity cutoff.
func (p *OpsStatsProvider) UserCounts(ctx context.Context, tenantID uuid.UUID) (total, inactive int64, err error) {
	cutoff := time.Now().UTC().Add(-InactivityCutoff)

	err = p.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM users WHERE tenant_id = ? AND deleted_at IS NULL", tenantID).
		Scan(&total).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count users for %s: %w", tenantID, err)
	}

	err = p.db.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM users
		     WHERE tenant_id = ? AND deleted_at IS NULL
		       AND (last_login_at IS NULL OR last_login_at < ?)`, tenantID, cutoff).
		Scan(&inactive).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count inactive users for %s: %w", tenantID, err)
	}

	return total, inactive, nil
}
