package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/borhen68/framatale-sub001/internal/domain/rule"
)

var _ rule.Store = (*RuleStore)(nil)

// RuleStore implements rule.Store backed by PostgreSQL.
type RuleStore struct {
	pool *pgxpool.Pool
}

// NewRuleStore returns a RuleStore that uses the given pool.
func NewRuleStore(pool *pgxpool.Pool) *RuleStore {
	return &RuleStore{pool: pool}
}

const ruleColumns = `id, name, kind, scope, priority, active,
	valid_from, valid_until, conditions, payload, created_at, updated_at`

// FindActive returns rules that are active and valid at f.At, coarsely
// pre-filtered on the indexed condition columns. Fine-grained condition
// matching stays with the caller: a rule whose conditions omit a field
// matches any value of it, which the JSONB containment below mirrors by
// also selecting rules without the condition key.
func (s *RuleStore) FindActive(ctx context.Context, f rule.Filter) ([]rule.Rule, error) {
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE active
		  AND (valid_from IS NULL OR valid_from <= $1)
		  AND (valid_until IS NULL OR valid_until >= $1)
		  AND (NOT conditions ? 'productTypes' OR conditions->'productTypes' @> to_jsonb($2::text))
		  AND (NOT conditions ? 'regions' OR conditions->'regions' @> to_jsonb($3::text))
		  AND (NOT conditions ? 'channels' OR conditions->'channels' @> to_jsonb($4::text))
		  AND (NOT conditions ? 'userSegments' OR conditions->'userSegments' @> to_jsonb($5::text))
		ORDER BY priority DESC, updated_at DESC`,
		at, f.ProductType, f.Region, f.Channel, f.UserSegment,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query active rules")
	}
	defer rows.Close()

	return scanRules(rows)
}

// List returns every rule regardless of state, in precedence order.
func (s *RuleStore) List(ctx context.Context) ([]rule.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		ORDER BY priority DESC, updated_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query rules")
	}
	defer rows.Close()

	return scanRules(rows)
}

// Get returns the rule with the given id.
// Returns *rule.NotFoundError when it does not exist.
func (s *RuleStore) Get(ctx context.Context, id string) (*rule.Rule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE id = $1`, id)

	r, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &rule.NotFoundError{ID: id}
		}
		return nil, errors.Wrapf(err, "get rule %s", id)
	}
	return r, nil
}

// Create inserts a new rule.
func (s *RuleStore) Create(ctx context.Context, r *rule.Rule) error {
	conditions, payload, err := encodeRule(r)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pricing_rules
			(id, name, kind, scope, priority, active, valid_from, valid_until,
			 conditions, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.Name, string(r.Kind), string(r.Scope), r.Priority, r.Active,
		r.ValidFrom, r.ValidUntil, conditions, payload, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert rule %s", r.ID)
	}
	return nil
}

// Upsert inserts a rule or rewrites the existing row with the same id.
// Used by bulk import tooling; the service layer goes through Create and
// Update for their not-found semantics.
func (s *RuleStore) Upsert(ctx context.Context, r *rule.Rule) error {
	conditions, payload, err := encodeRule(r)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pricing_rules
			(id, name, kind, scope, priority, active, valid_from, valid_until,
			 conditions, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			scope = EXCLUDED.scope,
			priority = EXCLUDED.priority,
			active = EXCLUDED.active,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			conditions = EXCLUDED.conditions,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		r.ID, r.Name, string(r.Kind), string(r.Scope), r.Priority, r.Active,
		r.ValidFrom, r.ValidUntil, conditions, payload, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert rule %s", r.ID)
	}
	return nil
}

// Update rewrites an existing rule.
// Returns *rule.NotFoundError when it does not exist.
func (s *RuleStore) Update(ctx context.Context, r *rule.Rule) error {
	conditions, payload, err := encodeRule(r)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE pricing_rules
		SET name = $2, kind = $3, scope = $4, priority = $5, active = $6,
		    valid_from = $7, valid_until = $8, conditions = $9, payload = $10,
		    updated_at = $11
		WHERE id = $1`,
		r.ID, r.Name, string(r.Kind), string(r.Scope), r.Priority, r.Active,
		r.ValidFrom, r.ValidUntil, conditions, payload, r.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update rule %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return &rule.NotFoundError{ID: r.ID}
	}
	return nil
}

// Delete removes a rule permanently.
// Returns *rule.NotFoundError when it does not exist.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pricing_rules WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete rule %s", id)
	}
	if tag.RowsAffected() == 0 {
		return &rule.NotFoundError{ID: id}
	}
	return nil
}

func encodeRule(r *rule.Rule) (conditions, payload []byte, err error) {
	conditions, err = json.Marshal(r.Conditions)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal conditions")
	}
	payload, err = rule.EncodePayload(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal payload")
	}
	return conditions, payload, nil
}

func scanRule(row pgx.Row) (*rule.Rule, error) {
	var (
		r          rule.Rule
		kind       string
		scope      string
		conditions []byte
		payload    []byte
	)
	err := row.Scan(
		&r.ID, &r.Name, &kind, &scope, &r.Priority, &r.Active,
		&r.ValidFrom, &r.ValidUntil, &conditions, &payload,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Kind = rule.Kind(kind)
	r.Scope = rule.Scope(scope)

	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, errors.Wrap(err, "unmarshal conditions")
	}
	if err := rule.DecodePayload(&r, payload); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRules(rows pgx.Rows) ([]rule.Rule, error) {
	var out []rule.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan rule")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rules")
	}
	return out, nil
}
