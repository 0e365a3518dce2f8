package model

// BatchItemError describes one failed item of a batch. Index is the item's
// position in the input; ID is set when the input was a list of ids.
type BatchItemError struct {
	Index   int
	ID      int64
	Message string
}

// BatchResult aggregates independent per-item outcomes. Errors are in input
// order.
type BatchResult struct {
	Succeeded int
	Failed    int
	Errors    []BatchItemError
}

// Succeed records a successful item.
func (b *BatchResult) Succeed() {
	b.Succeeded++
}

// Fail records a failed item.
func (b *BatchResult) Fail(index int, id int64, err error) {
	b.Failed++
	b.Errors = append(b.Errors, BatchItemError{Index: index, ID: id, Message: err.Error()})
}
