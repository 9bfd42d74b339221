package gateway

import "testing"

func TestNormalizeCamelCase(t *testing.T) {
	txn := Normalize(map[string]any{
		"transferType":       "in",
		"transferAmount":     float64(50000),
		"transactionContent": "NAP TIEN OTPK3J9QXZT",
		"referenceNumber":    "FT123456",
	})
	if txn.TransferType != TransferIn {
		t.Fatalf("unexpected type: %s", txn.TransferType)
	}
	if txn.TransferAmount != 50000 {
		t.Fatalf("unexpected amount: %d", txn.TransferAmount)
	}
	if txn.TransactionContent != "NAP TIEN OTPK3J9QXZT" {
		t.Fatalf("unexpected content: %s", txn.TransactionContent)
	}
	if txn.ReferenceNumber != "FT123456" {
		t.Fatalf("unexpected reference: %s", txn.ReferenceNumber)
	}
}

func TestNormalizeSnakeCaseAliases(t *testing.T) {
	txn := Normalize(map[string]any{
		"transfer_type":    "IN",
		"transfer_amount":  "99500",
		"content":          "OTP ABC",
		"reference_number": "ref-1",
	})
	if txn.TransferType != TransferIn || txn.TransferAmount != 99500 {
		t.Fatalf("unexpected normalization: %#v", txn)
	}
}

func TestNormalizeStringAmountWithDecimals(t *testing.T) {
	txn := Normalize(map[string]any{"amount": "100000.00", "description": "x", "id": "1"})
	if txn.TransferAmount != 100000 {
		t.Fatalf("unexpected amount: %d", txn.TransferAmount)
	}
}

func TestNormalizeInfersDirectionFromSign(t *testing.T) {
	out := Normalize(map[string]any{"amount": float64(-20000), "id": "2"})
	if out.TransferType != TransferOut || out.TransferAmount != 20000 {
		t.Fatalf("unexpected normalization: %#v", out)
	}
	in := Normalize(map[string]any{"amount": float64(20000), "id": "3"})
	if in.TransferType != TransferIn {
		t.Fatalf("unexpected type: %s", in.TransferType)
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	txn := Normalize(map[string]any{})
	if txn.TransferAmount != 0 || txn.TransactionContent != "" || txn.ReferenceNumber != "" {
		t.Fatalf("expected zero values, got %#v", txn)
	}
}
