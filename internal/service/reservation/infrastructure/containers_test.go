package infrastructure

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/gorm"

	"allocator/internal/pkg/config"
)

var allTables = []string{
	"reservation_allocations",
	"reservations",
	"order_items",
	"orders",
	"warehouse_item_reservations",
	"warehouse_items",
	"warehouses",
}

// setupMySQL 启动一个 MySQL 容器并通过 NewMySQL 完成迁移。
// -short 或没有可用的 Docker 时跳过。
func setupMySQL(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MySQL container tests in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcmysql.Run(ctx, "mysql:8.0.36", tcmysql.WithDatabase("warehouse"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(parsed.Addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	db, err := NewMySQL(config.MysqlConfig{
		Host:        host,
		Port:        port,
		User:        parsed.User,
		Password:    parsed.Passwd,
		Database:    parsed.DBName,
		AutoMigrate: true,
	})
	require.NoError(t, err)
	return db
}

func resetTables(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, table := range allTables {
		require.NoError(t, db.Exec("TRUNCATE TABLE "+table).Error)
	}
}

// seedWarehouses 写入 W1 > W2 > W3 三个仓库
func seedWarehouses(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create([]WarehouseModel{
		{ID: 1, Name: "W1", Priority: 3},
		{ID: 2, Name: "W2", Priority: 2},
		{ID: 3, Name: "W3", Priority: 1},
	}).Error)
}

func seedStock(t *testing.T, db *gorm.DB, warehouseID, itemID int64, qty int) {
	t.Helper()
	require.NoError(t, db.Create(&StockModel{WarehouseID: warehouseID, ItemID: itemID, Qty: qty}).Error)
}

func seedOrder(t *testing.T, db *gorm.DB, id int64, profit float64, status string, items ...OrderItemModel) {
	t.Helper()
	require.NoError(t, db.Create(&OrderModel{ID: id, Profit: profit, Status: status, Items: items}).Error)
}
