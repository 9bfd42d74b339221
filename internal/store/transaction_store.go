package store

import "context"

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

type transactionRow struct {
	ID            string  `db:"id"`
	UserID        string  `db:"user_id"`
	Username      *string `db:"username"`
	Type          string  `db:"type"`
	Amount        int64   `db:"amount"`
	BalanceBefore int64   `db:"balance_before"`
	BalanceAfter  int64   `db:"balance_after"`
	Description   string  `db:"description"`
	ReferenceID   *string `db:"reference_id"`
	Status        string  `db:"status"`
	CreatedAt     any     `db:"created_at"`
}

type TransactionInput struct {
	ID            string
	UserID        string
	Type          string
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Description   string
	ReferenceID   *string
	Status        string
}

// Create appends one ledger row. The reference_id column carries a unique
// index, so a retried webhook that somehow reaches this point twice fails
// on the second insert instead of double-crediting.
func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	query := `
		INSERT INTO transactions (id, user_id, type, amount, balance_before, balance_after, description, reference_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.UserID, input.Type, input.Amount, input.BalanceBefore,
		input.BalanceAfter, input.Description, input.ReferenceID, input.Status,
	)
	return err
}

func (s *TransactionStore) ExistsByReference(ctx context.Context, referenceID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM transactions WHERE reference_id = $1)
	`, referenceID)
	return exists, err
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]map[string]any, error) {
	var rows []transactionRow
	query := `
		SELECT t.id, t.user_id, u.username, t.type, t.amount, t.balance_before, t.balance_after,
		       t.description, t.reference_id, t.status, t.created_at
		FROM transactions t
		LEFT JOIN users u ON u.id = t.user_id
		WHERE t.user_id = $1
	`
	args := []any{userID}
	param := 2
	if txType != "" {
		query += " AND t.type = $2"
		args = append(args, txType)
		param = 3
	}
	query += " ORDER BY t.created_at DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return transactionRowsToMaps(rows), nil
}

func (s *TransactionStore) ListAll(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT t.id, t.user_id, u.username, t.type, t.amount, t.balance_before, t.balance_after,
		       t.description, t.reference_id, t.status, t.created_at
		FROM transactions t
		LEFT JOIN users u ON u.id = t.user_id
		ORDER BY t.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return transactionRowsToMaps(rows), nil
}

func transactionRowsToMaps(rows []transactionRow) []map[string]any {
	maps := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		maps = append(maps, map[string]any{
			"id":             row.ID,
			"user_id":        row.UserID,
			"username":       derefStringPtr(row.Username),
			"type":           row.Type,
			"amount":         row.Amount,
			"balance_before": row.BalanceBefore,
			"balance_after":  row.BalanceAfter,
			"description":    row.Description,
			"reference_id":   derefStringPtr(row.ReferenceID),
			"status":         row.Status,
			"created_at":     row.CreatedAt,
		})
	}
	return maps
}
