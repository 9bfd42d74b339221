package gateway

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Field aliases seen across gateway versions. The tolerance for sloppy
// payload shapes lives entirely here; everything past this point works
// with the fixed BankTransaction type.
var (
	typeKeys      = []string{"transferType", "transfer_type", "type"}
	amountKeys    = []string{"transferAmount", "transfer_amount", "amount", "amount_in"}
	contentKeys   = []string{"transactionContent", "transaction_content", "content", "description"}
	referenceKeys = []string{"referenceNumber", "reference_number", "referenceCode", "reference_code", "id"}
)

// Normalize maps an arbitrary gateway payload onto a BankTransaction.
// Missing fields come back zero-valued; the reconciliation guards treat
// those as skips rather than errors.
func Normalize(raw map[string]any) BankTransaction {
	amount := amountToUnits(firstValue(raw, amountKeys))
	transferType := strings.ToLower(stringValue(firstValue(raw, typeKeys)))
	if transferType == "" {
		// Some gateway versions signal direction only through the sign.
		if amount >= 0 {
			transferType = TransferIn
		} else {
			transferType = TransferOut
		}
	}
	if amount < 0 {
		amount = -amount
	}
	return BankTransaction{
		TransferType:       transferType,
		TransferAmount:     amount,
		TransactionContent: stringValue(firstValue(raw, contentKeys)),
		ReferenceNumber:    stringValue(firstValue(raw, referenceKeys)),
	}
}

func firstValue(raw map[string]any, keys []string) any {
	for _, key := range keys {
		if value, ok := raw[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case float64:
		return decimal.NewFromFloat(v).String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// amountToUnits coerces whatever the gateway sent (JSON number, numeric
// string, occasionally with decimals) into whole currency units without
// float drift.
func amountToUnits(value any) int64 {
	switch v := value.(type) {
	case nil:
		return 0
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return decimal.NewFromFloat(v).Truncate(0).IntPart()
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return parsed.Truncate(0).IntPart()
	default:
		parsed, err := decimal.NewFromString(fmt.Sprint(v))
		if err != nil {
			return 0
		}
		return parsed.Truncate(0).IntPart()
	}
}
