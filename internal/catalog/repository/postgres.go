package repository

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/omnifeed/feed-export-service/config"
	"github.com/omnifeed/feed-export-service/internal/catalog"
	"github.com/omnifeed/feed-export-service/internal/model"
)

// Connect opens a pgx-backed sqlx handle with the pool settings from config.
func Connect(cfg config.PostgresConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// PGRepository reads the site catalog with its feed-relevant relations. The
// cursor pages by keyset on product ID and hydrates one page of relations at
// a time, so memory stays bounded for arbitrarily large catalogs.
type PGRepository struct {
	DB       *sqlx.DB
	SiteID   string
	Currency string
	PageSize int

	booksOnce sync.Once
	books     map[string]*model.PriceBook
	booksErr  error
}

func NewPGRepository(db *sqlx.DB, site config.SiteConfig) *PGRepository {
	return &PGRepository{
		DB:       db,
		SiteID:   site.ID,
		Currency: site.Currency,
		PageSize: 250,
	}
}

func (r *PGRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.GetContext(ctx, &count,
		`SELECT count(*) FROM products WHERE site_id = $1`, r.SiteID)
	return count, err
}

func (r *PGRepository) PriceBookIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.DB.SelectContext(ctx, &ids,
		`SELECT id FROM price_books WHERE site_id = $1 ORDER BY id`, r.SiteID)
	return ids, err
}

func (r *PGRepository) Products(ctx context.Context) (catalog.Cursor, error) {
	// Price-book chains are site-level and small; resolve them once and share
	// across pages.
	if _, err := r.priceBooks(ctx); err != nil {
		return nil, err
	}
	return &pgCursor{repo: r}, nil
}

// productRow is the flat scan target for one products row.
type productRow struct {
	model.Product
	MasterID *string `db:"master_id"`
}

type pgCursor struct {
	repo   *PGRepository
	buf    []*model.Product
	lastID string
	eof    bool
	closed bool
}

func (c *pgCursor) Next(ctx context.Context) (*model.Product, error) {
	if c.closed {
		return nil, io.EOF
	}
	if len(c.buf) == 0 {
		if c.eof {
			return nil, io.EOF
		}
		if err := c.fetchPage(ctx); err != nil {
			return nil, err
		}
		if len(c.buf) == 0 {
			c.eof = true
			return nil, io.EOF
		}
	}
	p := c.buf[0]
	c.buf = c.buf[1:]
	c.lastID = p.ID
	return p, nil
}

func (c *pgCursor) Close() error {
	c.closed = true
	c.buf = nil
	return nil
}

func (c *pgCursor) fetchPage(ctx context.Context) error {
	r := c.repo

	var rows []productRow
	err := r.DB.SelectContext(ctx, &rows, `
        SELECT id, name, page_title, short_description, long_description,
               upc, brand, manufacturer_name, manufacturer_sku, base_price,
               online, is_bundle, is_master, is_option, is_set, is_variant,
               is_variation_group, master_id
        FROM products
        WHERE site_id = $1 AND id > $2
        ORDER BY id
        LIMIT $3`,
		r.SiteID, c.lastID, r.PageSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		c.eof = true
		return nil
	}
	if len(rows) < r.PageSize {
		c.eof = true
	}

	page, err := r.hydrate(ctx, rows)
	if err != nil {
		return err
	}
	c.buf = page
	return nil
}

// hydrate attaches every feed-relevant relation to one page of product rows.
func (r *PGRepository) hydrate(ctx context.Context, rows []productRow) ([]*model.Product, error) {
	ids := make([]string, 0, len(rows))
	byID := make(map[string]*model.Product, len(rows))
	page := make([]*model.Product, 0, len(rows))

	for i := range rows {
		p := rows[i].Product
		p.Price = model.PriceModel{Base: p.BasePrice, Currency: r.Currency}
		page = append(page, &p)
		byID[p.ID] = &p
		ids = append(ids, p.ID)
	}

	if err := r.attachImages(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.attachCategories(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.attachCustomAttributes(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.attachAvailability(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.attachPrices(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.attachPromotions(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.attachVariation(ctx, rows, byID); err != nil {
		return nil, err
	}

	return page, nil
}

func (r *PGRepository) attachImages(ctx context.Context, ids []string, byID map[string]*model.Product) error {
	var rows []struct {
		ProductID string `db:"product_id"`
		model.Image
	}
	query, args, err := sqlx.In(`
        SELECT product_id, view_type, abs_url, position
        FROM product_images
        WHERE product_id IN (?)
        ORDER BY product_id, view_type, position`, ids)
	if err != nil {
		return err
	}
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for _, row := range rows {
		p := byID[row.ProductID]
		p.Images = append(p.Images, row.Image)
	}
	return nil
}

func (r *PGRepository) attachCategories(ctx context.Context, ids []string, byID map[string]*model.Product) error {
	var rows []struct {
		ProductID string `db:"product_id"`
		model.Category
	}
	query, args, err := sqlx.In(`
        SELECT pc.product_id, c.id, c.parent_id, c.name, c.online, c.position
        FROM product_categories pc
        JOIN categories c ON c.id = pc.category_id
        WHERE pc.product_id IN (?)
        ORDER BY pc.product_id, c.position, c.id`, ids)
	if err != nil {
		return err
	}
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for _, row := range rows {
		p := byID[row.ProductID]
		p.Categories = append(p.Categories, row.Category)
	}
	return nil
}

func (r *PGRepository) attachCustomAttributes(ctx context.Context, ids []string, byID map[string]*model.Product) error {
	var rows []struct {
		ProductID string `db:"product_id"`
		Key       string `db:"attr_key"`
		Value     string `db:"attr_value"`
	}
	query, args, err := sqlx.In(`
        SELECT product_id, attr_key, attr_value
        FROM product_custom_attributes
        WHERE product_id IN (?)`, ids)
	if err != nil {
		return err
	}
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for _, row := range rows {
		p := byID[row.ProductID]
		if p.Custom == nil {
			p.Custom = make(map[string]string)
		}
		p.Custom[row.Key] = row.Value
	}
	return nil
}

func (r *PGRepository) attachAvailability(ctx context.Context, ids []string, byID map[string]*model.Product) error {
	var rows []model.AvailabilityRecord
	query, args, err := sqlx.In(`
        SELECT product_id, perpetual, ats, orderable
        FROM inventory_records
        WHERE product_id IN (?)`, ids)
	if err != nil {
		return err
	}
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for i := range rows {
		byID[rows[i].ProductID].Availability = &rows[i]
	}
	return nil
}

func (r *PGRepository) attachPrices(ctx context.Context, ids []string, byID map[string]*model.Product) error {
	books, err := r.priceBooks(ctx)
	if err != nil {
		return err
	}

	var rows []struct {
		ProductID string  `db:"product_id"`
		BookID    string  `db:"price_book_id"`
		Price     float64 `db:"price"`
	}
	query, args, err := sqlx.In(`
        SELECT product_id, price_book_id, price
        FROM product_prices
        WHERE product_id IN (?)
        ORDER BY product_id, price_book_id`, ids)
	if err != nil {
		return err
	}
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for _, row := range rows {
		p := byID[row.ProductID]
		book := books[row.BookID]
		if book == nil {
			book = &model.PriceBook{ID: row.BookID}
		}
		p.Price.Entries = append(p.Price.Entries, model.PriceBookEntry{Book: book, Price: row.Price})
		if p.Price.BookPrices == nil {
			p.Price.BookPrices = make(map[string]float64)
		}
		p.Price.BookPrices[row.BookID] = row.Price
	}
	return nil
}

func (r *PGRepository) attachPromotions(ctx context.Context, ids []string, byID map[string]*model.Product) error {
	var rows []struct {
		ProductID  string   `db:"product_id"`
		PromoID    string   `db:"promo_id"`
		Class      string   `db:"class"`
		PromoPrice *float64 `db:"promo_price"`
	}
	query, args, err := sqlx.In(`
        SELECT pp.product_id, pr.id AS promo_id, pr.class, pp.promo_price
        FROM product_promotions pp
        JOIN promotions pr ON pr.id = pp.promotion_id
        WHERE pr.active AND pp.product_id IN (?)
        ORDER BY pp.product_id, pr.id`, ids)
	if err != nil {
		return err
	}
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for _, row := range rows {
		p := byID[row.ProductID]
		p.Promotions = append(p.Promotions, model.Promotion{
			ID:               row.PromoID,
			Class:            row.Class,
			PromotionalPrice: row.PromoPrice,
		})
	}
	return nil
}

// attachVariation resolves the variation model for the page: concrete values
// and a minimal master product for variants/groups, value domains for
// masters. Masters referenced by variants get only their base row and
// categories; that is all the feed columns read from them.
func (r *PGRepository) attachVariation(ctx context.Context, rows []productRow, byID map[string]*model.Product) error {
	var variantIDs, masterIDs, refMasterIDs []string
	masterRef := make(map[string]string)

	for _, row := range rows {
		if row.MasterID != nil && *row.MasterID != "" && (row.Product.Variant || row.Product.VariationGroup) {
			variantIDs = append(variantIDs, row.Product.ID)
			masterRef[row.Product.ID] = *row.MasterID
			refMasterIDs = append(refMasterIDs, *row.MasterID)
		}
		if row.Product.Master {
			masterIDs = append(masterIDs, row.Product.ID)
		}
	}

	masters, err := r.loadMasters(ctx, refMasterIDs)
	if err != nil {
		return err
	}

	if len(variantIDs) > 0 {
		var vals []struct {
			ProductID   string `db:"product_id"`
			AttributeID string `db:"attribute_id"`
			Value       string `db:"value"`
		}
		query, args, err := sqlx.In(`
            SELECT product_id, attribute_id, value
            FROM variation_values
            WHERE product_id IN (?)
            ORDER BY product_id, attribute_id`, variantIDs)
		if err != nil {
			return err
		}
		if err := r.DB.SelectContext(ctx, &vals, r.DB.Rebind(query), args...); err != nil {
			return err
		}

		for _, id := range variantIDs {
			byID[id].Variation = &model.VariationModel{
				MasterID: masterRef[id],
				Master:   masters[masterRef[id]],
			}
		}
		for _, v := range vals {
			vm := byID[v.ProductID].Variation
			vm.Attributes = append(vm.Attributes, model.VariationAttribute{
				ID:    v.AttributeID,
				Value: v.Value,
			})
		}
	}

	if len(masterIDs) > 0 {
		var vals []struct {
			MasterID    string `db:"master_id"`
			AttributeID string `db:"attribute_id"`
			Value       string `db:"value"`
		}
		query, args, err := sqlx.In(`
            SELECT p.master_id, vv.attribute_id, vv.value
            FROM variation_values vv
            JOIN products p ON p.id = vv.product_id
            WHERE p.master_id IN (?)
            ORDER BY p.master_id, vv.attribute_id, vv.value`, masterIDs)
		if err != nil {
			return err
		}
		if err := r.DB.SelectContext(ctx, &vals, r.DB.Rebind(query), args...); err != nil {
			return err
		}

		for _, id := range masterIDs {
			byID[id].Variation = &model.VariationModel{}
		}
		seen := make(map[string]map[string]bool)
		for _, v := range vals {
			vm := byID[v.MasterID].Variation
			if seen[v.MasterID] == nil {
				seen[v.MasterID] = make(map[string]bool)
			}
			key := v.AttributeID + "\x00" + v.Value
			if seen[v.MasterID][key] {
				continue
			}
			seen[v.MasterID][key] = true

			idx := -1
			for i := range vm.Attributes {
				if vm.Attributes[i].ID == v.AttributeID {
					idx = i
					break
				}
			}
			if idx < 0 {
				vm.Attributes = append(vm.Attributes, model.VariationAttribute{ID: v.AttributeID})
				idx = len(vm.Attributes) - 1
			}
			vm.Attributes[idx].Values = append(vm.Attributes[idx].Values, v.Value)
		}
	}

	return nil
}

func (r *PGRepository) loadMasters(ctx context.Context, ids []string) (map[string]*model.Product, error) {
	masters := make(map[string]*model.Product)
	if len(ids) == 0 {
		return masters, nil
	}

	var rows []productRow
	query, args, err := sqlx.In(`
        SELECT id, name, page_title, short_description, long_description,
               upc, brand, manufacturer_name, manufacturer_sku, base_price,
               online, is_bundle, is_master, is_option, is_set, is_variant,
               is_variation_group, master_id
        FROM products
        WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}

	mByID := make(map[string]*model.Product, len(rows))
	mIDs := make([]string, 0, len(rows))
	for i := range rows {
		p := rows[i].Product
		masters[p.ID] = &p
		mByID[p.ID] = &p
		mIDs = append(mIDs, p.ID)
	}
	if len(mIDs) > 0 {
		if err := r.attachCategories(ctx, mIDs, mByID); err != nil {
			return nil, err
		}
	}
	return masters, nil
}

// priceBooks loads the site's price books once and links parent chains.
func (r *PGRepository) priceBooks(ctx context.Context) (map[string]*model.PriceBook, error) {
	r.booksOnce.Do(func() {
		var rows []struct {
			ID       string  `db:"id"`
			ParentID *string `db:"parent_id"`
		}
		if err := r.DB.SelectContext(ctx, &rows,
			`SELECT id, parent_id FROM price_books WHERE site_id = $1`, r.SiteID); err != nil {
			r.booksErr = err
			return
		}

		books := make(map[string]*model.PriceBook, len(rows))
		for _, row := range rows {
			books[row.ID] = &model.PriceBook{ID: row.ID}
		}
		for _, row := range rows {
			if row.ParentID != nil {
				books[row.ID].Parent = books[*row.ParentID]
			}
		}
		r.books = books
	})
	return r.books, r.booksErr
}
