package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant checks run repeatedly during the stress test.
// Each query returns rows only when the invariant is violated.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_free_purchase_per_user",
			SQL: `SELECT buyer_id, COUNT(*) FROM recruit_purchases
                  WHERE type = 'free_first'
                  GROUP BY buyer_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_free_purchase_implies_user_flag",
			SQL: `SELECT p.buyer_id FROM recruit_purchases p
                  JOIN users u ON u.id = p.buyer_id
                  WHERE p.type = 'free_first' AND NOT u.free_recruit_claimed`,
		},
		{
			Name: "O3_free_purchase_is_zero_priced",
			SQL: `SELECT id, type, amount_cents FROM recruit_purchases
                  WHERE (type = 'free_first' AND amount_cents <> 0)
                     OR (type <> 'free_first' AND amount_cents <= 0)`,
		},
		{
			Name: "O4_reservation_shape",
			SQL: `SELECT id FROM recruit_pool
                  WHERE (available AND (reserved_by IS NOT NULL OR reserved_at IS NOT NULL))
                     OR (NOT available AND (reserved_by IS NULL OR reserved_at IS NULL))`,
		},
		{
			Name: "O5_delivered_purchase_recruit_parity",
			SQL: `SELECT p.id FROM recruit_purchases p
                  LEFT JOIN recruits r ON r.purchase_id = p.id
                  WHERE p.status = 'delivered' AND r.id IS NULL
                  UNION ALL
                  SELECT r.purchase_id FROM recruits r
                  JOIN recruit_purchases p ON p.id = r.purchase_id
                  WHERE p.status <> 'delivered'`,
		},
		{
			Name: "O6_recruit_owner_matches_buyer",
			SQL: `SELECT r.id FROM recruits r
                  JOIN recruit_purchases p ON p.id = r.purchase_id
                  WHERE r.agent_id <> p.buyer_id`,
		},
		{
			Name: "O7_one_pending_dispute_per_recruit",
			SQL: `SELECT recruit_id, COUNT(*) FROM disputes
                  WHERE status = 'pending_review'
                  GROUP BY recruit_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O8_resolution_shape",
			SQL: `SELECT id, status FROM disputes
                  WHERE (status = 'approved' AND (resolved_by IS NULL OR resolved_at IS NULL))
                     OR (status = 'denied' AND resolution_action IS NOT NULL)
                     OR (status = 'pending_review' AND resolved_at IS NOT NULL)`,
		},
		{
			Name: "O9_dispute_has_created_log",
			SQL: `SELECT d.id FROM disputes d
                  WHERE NOT EXISTS (
                      SELECT 1 FROM dispute_logs l
                      WHERE l.dispute_id = d.id AND l.action = 'created')`,
		},
		{
			Name: "O10_failed_purchase_left_no_recruit",
			SQL: `SELECT p.id FROM recruit_purchases p
                  JOIN recruits r ON r.purchase_id = p.id
                  WHERE p.status = 'failed'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample
// row) or an empty name when every invariant holds.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
