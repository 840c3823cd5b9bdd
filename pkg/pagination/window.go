package pagination

func visibleCount(total, batchSize, batches int) int {
	if batchSize <= 0 || batches <= 0 || total <= 0 {
		return 0
	}
	if batches > total/batchSize+1 {
		return total
	}
	n := batches * batchSize
	if n > total {
		return total
	}
	return n
}

// Window tracks how many batches of a filtered list are shown. It starts
// with one batch and grows by one batch per More call.
type Window struct {
	batchSize int
	batches   int
}

// NewWindow returns a window showing one batch of batchSize items. A
// non-positive batchSize falls back to DefaultLimit.
func NewWindow(batchSize int) *Window {
	if batchSize <= 0 {
		batchSize = DefaultLimit
	}
	return &Window{batchSize: batchSize, batches: 1}
}

func (w *Window) BatchSize() int { return w.batchSize }
func (w *Window) Batches() int   { return w.batches }

// Visible returns how many of total items are shown.
func (w *Window) Visible(total int) int {
	return visibleCount(total, w.batchSize, w.batches)
}

// HasMore reports whether items beyond the visible prefix remain.
func (w *Window) HasMore(total int) bool {
	return w.Visible(total) < total
}

// More reveals one more batch. It is a no-op once every item is visible.
func (w *Window) More(total int) {
	if w.HasMore(total) {
		w.batches++
	}
}

// Advance grows the window until it shows batches batches of total items,
// stopping early once every item is visible.
func (w *Window) Advance(batches, total int) {
	for w.batches < batches && w.HasMore(total) {
		w.More(total)
	}
}

// BatchResponse is the payload of a batch-revealed search.
type BatchResponse struct {
	Data      interface{} `json:"data"`
	Total     int         `json:"total"`
	Visible   int         `json:"visible"`
	BatchSize int         `json:"batch_size"`
	HasMore   bool        `json:"has_more"`
}
