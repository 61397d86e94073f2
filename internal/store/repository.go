// Package store provides CRUD repository operations over the local database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/melicheck/fieldsync/internal/models"
)

// Repository provides CRUD operations for all local tables. Only the queue
// manager deletes queue records and only the reference syncer replaces the
// assignment mirror; the repository itself enforces neither, it is plain
// data access.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository instance.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// =====================================================
// Session Operations
// =====================================================

// SaveSession stores the logged-in user, replacing any previous session.
func (r *Repository) SaveSession(user *models.User) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM users"); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO users (id, name, role, token) VALUES (?, ?, ?, ?)",
		user.ID, user.Name, user.Role, user.Token,
	); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetSession returns the stored session, or sql.ErrNoRows if nobody is
// logged in.
func (r *Repository) GetSession() (*models.User, error) {
	var u models.User
	err := r.db.QueryRow("SELECT id, name, role, token FROM users LIMIT 1").
		Scan(&u.ID, &u.Name, &u.Role, &u.Token)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ClearSession removes the stored session.
func (r *Repository) ClearSession() error {
	_, err := r.db.Exec("DELETE FROM users")
	return err
}

// =====================================================
// Store Mirror Operations
// =====================================================

// PutStore upserts a store mirror row (last-write-wins).
func (r *Repository) PutStore(s *models.Store) error {
	_, err := r.db.Exec(`
	INSERT INTO stores (id, name, address, latitude, longitude, qr_code, phone, status, last_sync)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name=excluded.name, address=excluded.address,
		latitude=excluded.latitude, longitude=excluded.longitude,
		qr_code=excluded.qr_code, phone=excluded.phone,
		status=excluded.status, last_sync=excluded.last_sync`,
		s.ID, s.Name, s.Address, s.Latitude, s.Longitude, s.QRCode, s.Phone, s.Status, s.LastSync)
	return err
}

// InsertStoreIfAbsent writes a store mirror row only when no row with the
// same id exists (first-write-wins, used for embedded copies).
func (r *Repository) InsertStoreIfAbsent(s *models.Store) error {
	_, err := r.db.Exec(`
	INSERT INTO stores (id, name, address, latitude, longitude, qr_code, phone, status, last_sync)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`,
		s.ID, s.Name, s.Address, s.Latitude, s.Longitude, s.QRCode, s.Phone, s.Status, s.LastSync)
	return err
}

// GetStore retrieves a store mirror row by id.
func (r *Repository) GetStore(id int64) (*models.Store, error) {
	row := r.db.QueryRow(
		"SELECT id, name, address, latitude, longitude, qr_code, phone, status, last_sync FROM stores WHERE id = ?", id)
	return scanStore(row)
}

// GetStoreByQR looks a store up by its QR identifier, for offline check-in
// validation.
func (r *Repository) GetStoreByQR(qrCode string) (*models.Store, error) {
	row := r.db.QueryRow(
		"SELECT id, name, address, latitude, longitude, qr_code, phone, status, last_sync FROM stores WHERE qr_code = ?", qrCode)
	return scanStore(row)
}

// ListStores returns all mirrored stores.
func (r *Repository) ListStores() ([]*models.Store, error) {
	rows, err := r.db.Query(
		"SELECT id, name, address, latitude, longitude, qr_code, phone, status, last_sync FROM stores ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []*models.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStore(row rowScanner) (*models.Store, error) {
	var s models.Store
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.Latitude, &s.Longitude,
		&s.QRCode, &s.Phone, &s.Status, &s.LastSync)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// =====================================================
// Product Mirror Operations
// =====================================================

// PutProduct upserts a product mirror row (last-write-wins, used by the
// authoritative catalog pull).
func (r *Repository) PutProduct(p *models.Product) error {
	_, err := r.db.Exec(`
	INSERT INTO products (id, name, sku, unit, price, image, status, last_sync)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name=excluded.name, sku=excluded.sku, unit=excluded.unit,
		price=excluded.price, image=excluded.image,
		status=excluded.status, last_sync=excluded.last_sync`,
		p.ID, p.Name, p.SKU, p.Unit, p.Price, p.Image, p.Status, p.LastSync)
	return err
}

// InsertProductIfAbsent writes a product mirror row only when absent
// (first-write-wins, used for embedded copies).
func (r *Repository) InsertProductIfAbsent(p *models.Product) error {
	_, err := r.db.Exec(`
	INSERT INTO products (id, name, sku, unit, price, image, status, last_sync)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`,
		p.ID, p.Name, p.SKU, p.Unit, p.Price, p.Image, p.Status, p.LastSync)
	return err
}

// GetProduct retrieves a product mirror row by id.
func (r *Repository) GetProduct(id int64) (*models.Product, error) {
	var p models.Product
	err := r.db.QueryRow(
		"SELECT id, name, sku, unit, price, image, status, last_sync FROM products WHERE id = ?", id).
		Scan(&p.ID, &p.Name, &p.SKU, &p.Unit, &p.Price, &p.Image, &p.Status, &p.LastSync)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActiveProducts returns mirrored products with ACTIVE status.
func (r *Repository) ListActiveProducts() ([]*models.Product, error) {
	return r.listProducts("SELECT id, name, sku, unit, price, image, status, last_sync FROM products WHERE status = ? ORDER BY name", models.StatusActive)
}

// ListProducts returns all mirrored products.
func (r *Repository) ListProducts() ([]*models.Product, error) {
	return r.listProducts("SELECT id, name, sku, unit, price, image, status, last_sync FROM products ORDER BY name")
}

func (r *Repository) listProducts(query string, args ...interface{}) ([]*models.Product, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Unit, &p.Price, &p.Image, &p.Status, &p.LastSync); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

// =====================================================
// Assignment Mirror Operations
// =====================================================

// ReplaceAssignments clears the assignment mirror and repopulates it in one
// transaction. The mirror is superseded wholesale on every successful pull.
func (r *Repository) ReplaceAssignments(assignments []*models.Assignment) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM assignments"); err != nil {
		tx.Rollback()
		return err
	}

	for _, a := range assignments {
		storeJSON, err := marshalNullable(a.Store)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to encode embedded store: %w", err)
		}
		productJSON, err := marshalNullable(a.Product)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to encode embedded product: %w", err)
		}

		if _, err := tx.Exec(`
		INSERT INTO assignments (assignment_id, store_id, product_id, dealer_id, status, assignment_type, store_json, product_json, last_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.AssignmentID, a.StoreID, a.ProductID, a.DealerID,
			a.Status, a.AssignmentType, storeJSON, productJSON, a.LastSync); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ListActiveAssignments returns mirrored assignments with ACTIVE status.
func (r *Repository) ListActiveAssignments() ([]*models.Assignment, error) {
	return r.listAssignments(
		"SELECT local_id, assignment_id, store_id, product_id, dealer_id, status, assignment_type, store_json, product_json, last_sync FROM assignments WHERE status = ?",
		models.StatusActive)
}

// ListAssignments returns all mirrored assignments.
func (r *Repository) ListAssignments() ([]*models.Assignment, error) {
	return r.listAssignments(
		"SELECT local_id, assignment_id, store_id, product_id, dealer_id, status, assignment_type, store_json, product_json, last_sync FROM assignments")
}

func (r *Repository) listAssignments(query string, args ...interface{}) ([]*models.Assignment, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		var a models.Assignment
		var storeJSON, productJSON sql.NullString
		if err := rows.Scan(&a.LocalID, &a.AssignmentID, &a.StoreID, &a.ProductID,
			&a.DealerID, &a.Status, &a.AssignmentType, &storeJSON, &productJSON, &a.LastSync); err != nil {
			return nil, err
		}
		if storeJSON.Valid && storeJSON.String != "" {
			var s models.Store
			if err := json.Unmarshal([]byte(storeJSON.String), &s); err == nil {
				a.Store = &s
			}
		}
		if productJSON.Valid && productJSON.String != "" {
			var p models.Product
			if err := json.Unmarshal([]byte(productJSON.String), &p); err == nil {
				a.Product = &p
			}
		}
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

func marshalNullable(v interface{}) (sql.NullString, error) {
	switch val := v.(type) {
	case *models.Store:
		if val == nil {
			return sql.NullString{}, nil
		}
	case *models.Product:
		if val == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// =====================================================
// Sync Metadata Operations
// =====================================================

// UpdateLastSync records a successful pull of the given type.
func (r *Repository) UpdateLastSync(key, status string) error {
	_, err := r.db.Exec(`
	INSERT INTO sync_metadata (key, last_sync, status) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET last_sync=excluded.last_sync, status=excluded.status`,
		key, time.Now().Unix(), status)
	return err
}

// GetLastSync returns the recorded sync metadata for a key, or nil when the
// pull type has never succeeded.
func (r *Repository) GetLastSync(key string) (*models.SyncMetadata, error) {
	var m models.SyncMetadata
	err := r.db.QueryRow("SELECT key, last_sync, status FROM sync_metadata WHERE key = ?", key).
		Scan(&m.Key, &m.LastSync, &m.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// OfflineDataCounts reports how much reference data is available offline.
func (r *Repository) OfflineDataCounts() (stores, products, assignments int, err error) {
	if err = r.db.QueryRow("SELECT COUNT(*) FROM stores").Scan(&stores); err != nil {
		return
	}
	if err = r.db.QueryRow("SELECT COUNT(*) FROM products").Scan(&products); err != nil {
		return
	}
	err = r.db.QueryRow("SELECT COUNT(*) FROM assignments").Scan(&assignments)
	return
}
