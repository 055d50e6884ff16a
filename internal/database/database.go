// Package database provides PostgreSQL connectivity and the repository
// implementations behind the metric, anomaly, alert, and tenant interfaces.
package database

import (
	"context"
	"fmt"

	"github.com/rizrmd/travel-sub003/pkg/alerting"
)

// Database bundles the connection and every repository the service wires
type Database struct {
	conn *Connection

	Tenants   *TenantRepository
	Metrics   *MetricRepository
	Anomalies *AnomalyRepository
	Alerts    *AlertRepository
	Stats     *OpsStatsProvider
}

// New opens the database and constructs all repositories
func New(config *Config, platformContacts alerting.Contacts) (*Database, error) {
	conn, err := NewConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &Database{
		conn:      conn,
		Tenants:   NewTenantRepository(conn, platformContacts),
		Metrics:   NewMetricRepository(conn),
		Anomalies: NewAnomalyRepository(conn),
		Alerts:    NewAlertRepository(conn),
		Stats:     NewOpsStatsProvider(conn),
	}, nil
}

// Connection returns the underlying connection
func (d *Database) Connection() *Connection {
	return d.conn
}

// HealthCheck verifies the database is reachable and serving
func (d *Database) HealthCheck(ctx context.Context) error {
	return d.conn.HealthCheck(ctx)
}

// Migrate runs automatic migrations for all models
func (d *Database) Migrate() error {
	return d.conn.AutoMigrate()
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.conn.Close()
}
