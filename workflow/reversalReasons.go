package workflow

// Standardized descriptions written on ledger rows.
// Reversals carry the reversed row id in reverses_movement_id as well.
const (
	LedgerReasonSale            = "Venta"
	LedgerReasonAccountPayment  = "Cobro cuenta corriente"
	LedgerReasonSupplierPayment = "Pago a proveedor"
	ReversalReasonSaleAnnulment = "Anulación"
)

func describe(reason, receipt string) string {
	if receipt == "" {
		return reason
	}
	return reason + " " + receipt
}
