package db

import (
	"strings"
	"testing"
)

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		user     string
		password string
		database string
		contains []string
	}{
		{
			name:     "default local",
			host:     "127.0.0.1",
			port:     3306,
			user:     "deskhand",
			password: "secret",
			database: "deskhand",
			contains: []string{"tcp(127.0.0.1:3306)", "/deskhand", "parseTime=true"},
		},
		{
			name:     "custom host and port",
			host:     "db.vpc.internal",
			port:     3307,
			user:     "svc",
			password: "",
			database: "helpdesk",
			contains: []string{"tcp(db.vpc.internal:3307)", "/helpdesk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := MySQLDSN(tt.host, tt.port, tt.user, tt.password, tt.database)
			for _, want := range tt.contains {
				if !strings.Contains(dsn, want) {
					t.Errorf("DSN %q missing %q", dsn, want)
				}
			}
		})
	}
}

func TestConnectSQLite_EmptyPath(t *testing.T) {
	if _, err := ConnectSQLite(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestConnectSQLite_InMemoryAndMigrate(t *testing.T) {
	gdb, err := ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"tickets", "ticket_histories"} {
		if !gdb.Migrator().HasTable(table) {
			t.Errorf("table %q not created", table)
		}
	}
}
