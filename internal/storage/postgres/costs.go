package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/borhen68/framatale-sub001/internal/domain/costplus"
)

var _ costplus.Catalog = (*CostCatalog)(nil)

// CostCatalog implements costplus.Catalog backed by PostgreSQL.
type CostCatalog struct {
	pool *pgxpool.Pool
}

// NewCostCatalog returns a CostCatalog that uses the given pool.
func NewCostCatalog(pool *pgxpool.Pool) *CostCatalog {
	return &CostCatalog{pool: pool}
}

// FindActiveCost returns the active cost structure for a product type.
// Empty variant or supplierID match any stored value; non-empty ones must
// match exactly. The most recently updated structure wins when several
// qualify. Returns *costplus.CostNotFoundError when none do.
func (c *CostCatalog) FindActiveCost(ctx context.Context, productType, variant, supplierID string) (*costplus.ProductCost, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, product_type, variant, supplier_id,
		       costs, volume_tiers, targets, active, created_at, updated_at
		FROM product_costs
		WHERE active
		  AND product_type = $1
		  AND ($2 = '' OR variant = $2)
		  AND ($3 = '' OR supplier_id = $3)
		ORDER BY updated_at DESC
		LIMIT 1`,
		productType, variant, supplierID,
	)

	p, err := scanProductCost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &costplus.CostNotFoundError{ProductType: productType, Variant: variant}
		}
		return nil, errors.Wrapf(err, "find cost for %s", productType)
	}
	return p, nil
}

// Save upserts a cost structure, keyed on the product/variant/supplier
// identity rather than the row id.
func (c *CostCatalog) Save(ctx context.Context, p *costplus.ProductCost) error {
	costs, err := json.Marshal(p.Costs)
	if err != nil {
		return errors.Wrap(err, "marshal costs")
	}
	tiers, err := json.Marshal(p.VolumeTiers)
	if err != nil {
		return errors.Wrap(err, "marshal volume tiers")
	}
	targets, err := json.Marshal(p.Targets)
	if err != nil {
		return errors.Wrap(err, "marshal targets")
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO product_costs
			(id, product_type, variant, supplier_id,
			 costs, volume_tiers, targets, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (product_type, variant, supplier_id) DO UPDATE SET
			costs = EXCLUDED.costs,
			volume_tiers = EXCLUDED.volume_tiers,
			targets = EXCLUDED.targets,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.ProductType, p.Variant, p.SupplierID,
		costs, tiers, targets, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "save cost for %s", p.ProductType)
	}
	return nil
}

func scanProductCost(row pgx.Row) (*costplus.ProductCost, error) {
	var (
		p       costplus.ProductCost
		costs   []byte
		tiers   []byte
		targets []byte
	)
	err := row.Scan(
		&p.ID, &p.ProductType, &p.Variant, &p.SupplierID,
		&costs, &tiers, &targets, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(costs, &p.Costs); err != nil {
		return nil, errors.Wrap(err, "unmarshal costs")
	}
	if err := json.Unmarshal(tiers, &p.VolumeTiers); err != nil {
		return nil, errors.Wrap(err, "unmarshal volume tiers")
	}
	if err := json.Unmarshal(targets, &p.Targets); err != nil {
		return nil, errors.Wrap(err, "unmarshal targets")
	}
	return &p, nil
}
