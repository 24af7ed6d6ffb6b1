package ledger

const (
	TopicOrderStateChanged = "order.state.changed"
	TopicReconcileAlert    = "points.reconcile.alert"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
