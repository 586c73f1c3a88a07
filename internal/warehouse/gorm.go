package warehouse

import (
	"context"
	"time"

	"medallion/internal/bronze"
	"medallion/internal/gold"
	"medallion/internal/silver"
	"medallion/pkg/errors"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const currentPointerName = "current"

type snapshotRecord struct {
	ID             string    `gorm:"primaryKey;size:64"`
	RunID          string    `gorm:"size:64;index"`
	AsOf           time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;index"`
	Checksum       string    `gorm:"size:32"`
	SourceRevision string    `gorm:"size:64"`
	RowCount       int
}

func (snapshotRecord) TableName() string { return "medallion_snapshots" }

type pointerRecord struct {
	Name       string `gorm:"primaryKey;size:32"`
	SnapshotID string `gorm:"size:64;not null"`
	UpdatedAt  time.Time
}

func (pointerRecord) TableName() string { return "medallion_current" }

// Row tables. Every row is keyed by snapshot so old snapshots stay intact.
type (
	bronzeCustomerRow struct {
		RowID              uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID         string `gorm:"size:64;index"`
		bronze.CRMCustomer `gorm:"embedded"`
	}
	bronzeProductRow struct {
		RowID             uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID        string `gorm:"size:64;index"`
		bronze.CRMProduct `gorm:"embedded"`
	}
	bronzeSalesRow struct {
		RowID               uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID          string `gorm:"size:64;index"`
		bronze.CRMSalesLine `gorm:"embedded"`
	}
	bronzeERPCustomerRow struct {
		RowID              uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID         string `gorm:"size:64;index"`
		bronze.ERPCustomer `gorm:"embedded"`
	}
	bronzeERPLocationRow struct {
		RowID              uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID         string `gorm:"size:64;index"`
		bronze.ERPLocation `gorm:"embedded"`
	}
	bronzeERPCategoryRow struct {
		RowID              uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID         string `gorm:"size:64;index"`
		bronze.ERPCategory `gorm:"embedded"`
	}

	silverCustomerRow struct {
		RowID           uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID      string `gorm:"size:64;index"`
		silver.Customer `gorm:"embedded"`
	}
	silverProductRow struct {
		RowID          uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID     string `gorm:"size:64;index"`
		silver.Product `gorm:"embedded"`
	}
	silverSalesRow struct {
		RowID            uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID       string `gorm:"size:64;index"`
		silver.SalesLine `gorm:"embedded"`
	}
	silverERPCustomerRow struct {
		RowID              uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID         string `gorm:"size:64;index"`
		silver.ERPCustomer `gorm:"embedded"`
	}
	silverERPLocationRow struct {
		RowID              uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID         string `gorm:"size:64;index"`
		silver.ERPLocation `gorm:"embedded"`
	}
	silverERPCategoryRow struct {
		RowID              uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID         string `gorm:"size:64;index"`
		silver.ERPCategory `gorm:"embedded"`
	}

	goldCustomerRow struct {
		RowID            uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID       string `gorm:"size:64;index"`
		gold.CustomerDim `gorm:"embedded"`
	}
	goldProductRow struct {
		RowID           uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID      string `gorm:"size:64;index"`
		gold.ProductDim `gorm:"embedded"`
	}
	goldSalesRow struct {
		RowID          uint   `gorm:"primaryKey;autoIncrement"`
		SnapshotID     string `gorm:"size:64;index"`
		gold.SalesFact `gorm:"embedded"`
	}
)

func (bronzeCustomerRow) TableName() string { return "bronze_" + bronze.EntityCRMCustomers }
func (bronzeProductRow) TableName() string { return "bronze_" + bronze.EntityCRMProducts }
func (bronzeSalesRow) TableName() string { return "bronze_" + bronze.EntityCRMSales }
func (bronzeERPCustomerRow) TableName() string { return "bronze_" + bronze.EntityERPCustomers }
func (bronzeERPLocationRow) TableName() string { return "bronze_" + bronze.EntityERPLocations }
func (bronzeERPCategoryRow) TableName() string { return "bronze_" + bronze.EntityERPCategories }
func (silverCustomerRow) TableName() string { return "silver_" + bronze.EntityCRMCustomers }
func (silverProductRow) TableName() string { return "silver_" + bronze.EntityCRMProducts }
func (silverSalesRow) TableName() string { return "silver_" + bronze.EntityCRMSales }
func (silverERPCustomerRow) TableName() string { return "silver_" + bronze.EntityERPCustomers }
func (silverERPLocationRow) TableName() string { return "silver_" + bronze.EntityERPLocations }
func (silverERPCategoryRow) TableName() string { return "silver_" + bronze.EntityERPCategories }
func (goldCustomerRow) TableName() string { return "gold_" + gold.TableCustomers }
func (goldProductRow) TableName() string { return "gold_" + gold.TableProducts }
func (goldSalesRow) TableName() string { return "gold_" + gold.TableSales }

var rowModels = []interface{}{
	&bronzeCustomerRow{}, &bronzeProductRow{}, &bronzeSalesRow{},
	&bronzeERPCustomerRow{}, &bronzeERPLocationRow{}, &bronzeERPCategoryRow{},
	&silverCustomerRow{}, &silverProductRow{}, &silverSalesRow{},
	&silverERPCustomerRow{}, &silverERPLocationRow{}, &silverERPCategoryRow{},
	&goldCustomerRow{}, &goldProductRow{}, &goldSalesRow{},
}

// GormStore persists snapshots through gorm on SQLite or PostgreSQL
type GormStore struct {
	db        *gorm.DB
	batchSize int
}

// OpenGorm opens a gorm store for the sqlite or postgres driver
func OpenGorm(driver, dsn string, batchSize int) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedDriver, "unsupported gorm driver").
			WithContext("driver", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.ConnectionError("failed to open warehouse store", err).
			WithContext("driver", driver)
	}

	return NewGormStore(db, batchSize)
}

// NewGormStore wraps an open gorm connection and migrates the schema
func NewGormStore(db *gorm.DB, batchSize int) (*GormStore, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	models := append([]interface{}{&snapshotRecord{}, &pointerRecord{}}, rowModels...)
	if err := db.AutoMigrate(models...); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMigration, "failed to migrate warehouse schema")
	}

	return &GormStore{db: db, batchSize: batchSize}, nil
}

// Publish writes every row of the snapshot and moves the current pointer in
// one transaction
func (g *GormStore) Publish(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil || snapshot.ID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "snapshot id is required")
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := snapshotRecord{
			ID:             snapshot.ID,
			RunID:          snapshot.RunID,
			AsOf:           snapshot.AsOf.UTC(),
			CreatedAt:      snapshot.CreatedAt.UTC(),
			Checksum:       snapshot.Checksum,
			SourceRevision: snapshot.SourceRevision,
			RowCount:       snapshot.Rows(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		if err := g.insertRows(tx, snapshot); err != nil {
			return err
		}

		return setPointer(tx, snapshot.ID)
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePublishFailed, "failed to publish snapshot").
			WithContext("snapshot_id", snapshot.ID)
	}
	return nil
}

func (g *GormStore) insertRows(tx *gorm.DB, s *Snapshot) error {
	id := s.ID
	var batches []interface{}

	if b := s.Bronze; b != nil {
		batches = append(batches,
			wrap(b.CRMCustomers, func(r bronze.CRMCustomer) bronzeCustomerRow { return bronzeCustomerRow{SnapshotID: id, CRMCustomer: r} }),
			wrap(b.CRMProducts, func(r bronze.CRMProduct) bronzeProductRow { return bronzeProductRow{SnapshotID: id, CRMProduct: r} }),
			wrap(b.CRMSales, func(r bronze.CRMSalesLine) bronzeSalesRow { return bronzeSalesRow{SnapshotID: id, CRMSalesLine: r} }),
			wrap(b.ERPCustomers, func(r bronze.ERPCustomer) bronzeERPCustomerRow { return bronzeERPCustomerRow{SnapshotID: id, ERPCustomer: r} }),
			wrap(b.ERPLocations, func(r bronze.ERPLocation) bronzeERPLocationRow { return bronzeERPLocationRow{SnapshotID: id, ERPLocation: r} }),
			wrap(b.ERPCategories, func(r bronze.ERPCategory) bronzeERPCategoryRow { return bronzeERPCategoryRow{SnapshotID: id, ERPCategory: r} }),
		)
	}
	if sv := s.Silver; sv != nil {
		batches = append(batches,
			wrap(sv.Customers, func(r silver.Customer) silverCustomerRow { return silverCustomerRow{SnapshotID: id, Customer: r} }),
			wrap(sv.Products, func(r silver.Product) silverProductRow { return silverProductRow{SnapshotID: id, Product: r} }),
			wrap(sv.Sales, func(r silver.SalesLine) silverSalesRow { return silverSalesRow{SnapshotID: id, SalesLine: r} }),
			wrap(sv.ERPCustomers, func(r silver.ERPCustomer) silverERPCustomerRow { return silverERPCustomerRow{SnapshotID: id, ERPCustomer: r} }),
			wrap(sv.ERPLocations, func(r silver.ERPLocation) silverERPLocationRow { return silverERPLocationRow{SnapshotID: id, ERPLocation: r} }),
			wrap(sv.ERPCategories, func(r silver.ERPCategory) silverERPCategoryRow { return silverERPCategoryRow{SnapshotID: id, ERPCategory: r} }),
		)
	}
	if gm := s.Gold; gm != nil {
		batches = append(batches,
			wrap(gm.Customers, func(r gold.CustomerDim) goldCustomerRow { return goldCustomerRow{SnapshotID: id, CustomerDim: r} }),
			wrap(gm.Products, func(r gold.ProductDim) goldProductRow { return goldProductRow{SnapshotID: id, ProductDim: r} }),
			wrap(gm.Sales, func(r gold.SalesFact) goldSalesRow { return goldSalesRow{SnapshotID: id, SalesFact: r} }),
		)
	}

	for _, rows := range batches {
		if rows == nil {
			continue
		}
		if err := tx.CreateInBatches(rows, g.batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

// wrap converts domain rows into store rows. Empty input yields nil.
func wrap[T any, R any](rows []T, f func(T) R) interface{} {
	if len(rows) == 0 {
		return nil
	}
	out := make([]R, len(rows))
	for i, r := range rows {
		out[i] = f(r)
	}
	return &out
}

func setPointer(tx *gorm.DB, snapshotID string) error {
	ptr := pointerRecord{Name: currentPointerName, SnapshotID: snapshotID, UpdatedAt: time.Now().UTC()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"snapshot_id", "updated_at"}),
	}).Create(&ptr).Error
}

// Current returns the snapshot readers currently see
func (g *GormStore) Current(ctx context.Context) (*SnapshotInfo, error) {
	db := g.db.WithContext(ctx)

	var ptr pointerRecord
	result := db.Where("name = ?", currentPointerName).Limit(1).Find(&ptr)
	if result.Error != nil {
		return nil, errors.SQLError("failed to read current snapshot", "", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.New(errors.ErrCodeNoSnapshot, "no snapshot has been published")
	}

	var record snapshotRecord
	result = db.Where("id = ?", ptr.SnapshotID).Limit(1).Find(&record)
	if result.Error != nil {
		return nil, errors.SQLError("failed to read snapshot", "", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.New(errors.ErrCodeSnapshotNotFound, "current snapshot is missing").
			WithContext("snapshot_id", ptr.SnapshotID)
	}

	info := record.info()
	info.Current = true
	return &info, nil
}

// List returns every snapshot, newest first
func (g *GormStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	db := g.db.WithContext(ctx)

	var records []snapshotRecord
	if err := db.Order("created_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, errors.SQLError("failed to list snapshots", "", err)
	}

	current := ""
	if info, err := g.Current(ctx); err == nil {
		current = info.ID
	}

	out := make([]SnapshotInfo, len(records))
	for i, r := range records {
		out[i] = r.info()
		out[i].Current = r.ID == current
	}
	return out, nil
}

// Activate points readers at an existing snapshot
func (g *GormStore) Activate(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&snapshotRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return errors.SQLError("failed to look up snapshot", "", err)
		}
		if count == 0 {
			return errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").
				WithContext("snapshot_id", id)
		}
		if err := setPointer(tx, id); err != nil {
			return errors.Wrap(err, errors.ErrCodeActivateFailed, "failed to move current pointer").
				WithContext("snapshot_id", id)
		}
		return nil
	})
}

// Prune deletes all but the newest keep snapshots and their rows
func (g *GormStore) Prune(ctx context.Context, keep int) (int, error) {
	infos, err := g.List(ctx)
	if err != nil {
		return 0, err
	}

	ids := PruneCandidates(infos, keep)
	if len(ids) == 0 {
		return 0, nil
	}

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ptr pointerRecord
		if err := tx.Where("name = ?", currentPointerName).Limit(1).Find(&ptr).Error; err != nil {
			return err
		}
		ids = withoutID(ids, ptr.SnapshotID)
		if len(ids) == 0 {
			return nil
		}
		for _, model := range rowModels {
			if err := tx.Where("snapshot_id IN ?", ids).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Where("id IN ?", ids).Delete(&snapshotRecord{}).Error
	})
	if err != nil {
		return 0, errors.SQLError("failed to prune snapshots", "", err)
	}
	return len(ids), nil
}

// withoutID drops a snapshot activated after the candidates were listed
func withoutID(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

// Load reads a snapshot back with all of its rows
func (g *GormStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	db := g.db.WithContext(ctx)

	var record snapshotRecord
	result := db.Where("id = ?", id).Limit(1).Find(&record)
	if result.Error != nil {
		return nil, errors.SQLError("failed to read snapshot", "", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").
			WithContext("snapshot_id", id)
	}

	s := &Snapshot{
		ID:             record.ID,
		RunID:          record.RunID,
		AsOf:           record.AsOf,
		CreatedAt:      record.CreatedAt,
		Checksum:       record.Checksum,
		SourceRevision: record.SourceRevision,
		Bronze:         &bronze.Batch{},
		Silver:         &silver.Batch{},
		Gold:           &gold.Model{},
	}

	var err error
	load := func(dest interface{}) {
		if err != nil {
			return
		}
		err = db.Where("snapshot_id = ?", id).Order("row_id").Find(dest).Error
	}

	var (
		bc  []bronzeCustomerRow
		bp  []bronzeProductRow
		bs  []bronzeSalesRow
		bec []bronzeERPCustomerRow
		bel []bronzeERPLocationRow
		bek []bronzeERPCategoryRow
		sc  []silverCustomerRow
		sp  []silverProductRow
		ss  []silverSalesRow
		sec []silverERPCustomerRow
		sel []silverERPLocationRow
		sek []silverERPCategoryRow
		gc  []goldCustomerRow
		gp  []goldProductRow
		gs  []goldSalesRow
	)
	for _, dest := range []interface{}{&bc, &bp, &bs, &bec, &bel, &bek, &sc, &sp, &ss, &sec, &sel, &sek, &gc, &gp, &gs} {
		load(dest)
	}
	if err != nil {
		return nil, errors.SQLError("failed to read snapshot rows", "", err).WithContext("snapshot_id", id)
	}

	s.Bronze.CRMCustomers = unwrap(bc, func(r bronzeCustomerRow) bronze.CRMCustomer { return r.CRMCustomer })
	s.Bronze.CRMProducts = unwrap(bp, func(r bronzeProductRow) bronze.CRMProduct { return r.CRMProduct })
	s.Bronze.CRMSales = unwrap(bs, func(r bronzeSalesRow) bronze.CRMSalesLine { return r.CRMSalesLine })
	s.Bronze.ERPCustomers = unwrap(bec, func(r bronzeERPCustomerRow) bronze.ERPCustomer { return r.ERPCustomer })
	s.Bronze.ERPLocations = unwrap(bel, func(r bronzeERPLocationRow) bronze.ERPLocation { return r.ERPLocation })
	s.Bronze.ERPCategories = unwrap(bek, func(r bronzeERPCategoryRow) bronze.ERPCategory { return r.ERPCategory })
	s.Silver.Customers = unwrap(sc, func(r silverCustomerRow) silver.Customer { return r.Customer })
	s.Silver.Products = unwrap(sp, func(r silverProductRow) silver.Product { return r.Product })
	s.Silver.Sales = unwrap(ss, func(r silverSalesRow) silver.SalesLine { return r.SalesLine })
	s.Silver.ERPCustomers = unwrap(sec, func(r silverERPCustomerRow) silver.ERPCustomer { return r.ERPCustomer })
	s.Silver.ERPLocations = unwrap(sel, func(r silverERPLocationRow) silver.ERPLocation { return r.ERPLocation })
	s.Silver.ERPCategories = unwrap(sek, func(r silverERPCategoryRow) silver.ERPCategory { return r.ERPCategory })
	s.Gold.Customers = unwrap(gc, func(r goldCustomerRow) gold.CustomerDim { return r.CustomerDim })
	s.Gold.Products = unwrap(gp, func(r goldProductRow) gold.ProductDim { return r.ProductDim })
	s.Gold.Sales = unwrap(gs, func(r goldSalesRow) gold.SalesFact { return r.SalesFact })

	return s, nil
}

func unwrap[R any, T any](rows []R, f func(R) T) []T {
	if len(rows) == 0 {
		return nil
	}
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = f(r)
	}
	return out
}

// Close releases the underlying connection pool
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r snapshotRecord) info() SnapshotInfo {
	return SnapshotInfo{
		ID:             r.ID,
		RunID:          r.RunID,
		AsOf:           r.AsOf,
		CreatedAt:      r.CreatedAt,
		Checksum:       r.Checksum,
		SourceRevision: r.SourceRevision,
		Rows:           r.RowCount,
	}
}
