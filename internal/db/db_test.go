package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/quickvocab/internal/config"
	"github.com/zulandar/quickvocab/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		host     string
		port     int
		database string
		want     string
	}{
		{
			name:     "default local",
			user:     "root",
			host:     "127.0.0.1",
			port:     3306,
			database: "quickvocab",
			want:     "root@tcp(127.0.0.1:3306)/quickvocab?parseTime=true",
		},
		{
			name:     "custom user host and port",
			user:     "vocab",
			host:     "10.0.0.5",
			port:     3307,
			database: "words",
			want:     "vocab@tcp(10.0.0.5:3307)/words?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.host, tt.port, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnect_NonSQLDriver(t *testing.T) {
	_, err := Connect(config.StoreConfig{Driver: config.DriverBolt})
	if err == nil {
		t.Fatal("expected error for bolt driver")
	}
	if !strings.Contains(err.Error(), "not a SQL driver") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConnect_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "qv.db")
	gormDB, err := Connect(config.StoreConfig{Driver: config.DriverSQLite, Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(gormDB)

	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if !gormDB.Migrator().HasTable(&models.HistoryDocument{}) {
		t.Error("history_documents table not created")
	}
}

func TestConnectSQLite_Memory(t *testing.T) {
	gormDB, err := ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("ConnectSQLite: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	doc := models.HistoryDocument{
		DatabaseID:   "db",
		CollectionID: "col",
		DocID:        "unique_1",
		Messages:     "[]",
		Timestamp:    "2026-01-01T00:00:00.000Z",
	}
	if err := gormDB.Create(&doc).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var count int64
	gormDB.Model(&models.HistoryDocument{}).Count(&count)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 1 {
		t.Errorf("AllModels() returned %d models, want 1", got)
	}
}

func TestConnectMySQL_Error(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := ConnectMySQL("root", "127.0.0.1", 1, "nonexistent")
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect to")
	}
}

func TestConnectAdmin_Error(t *testing.T) {
	_, err := ConnectAdmin("root", "127.0.0.1", 1)
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: admin connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: admin connect to")
	}
}
