package token

// journal records undo steps while at least one snapshot is open. Writes made
// outside any snapshot are not journaled, and the log is dropped once the
// outermost snapshot is discarded or reverted.
type journal struct {
	undo []func()
	open int
}

func (j *journal) append(undo func()) {
	if j.open == 0 {
		return
	}
	j.undo = append(j.undo, undo)
}

func (j *journal) snapshot() int {
	j.open++
	return len(j.undo)
}

func (j *journal) revert(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(j.undo) - 1; i >= id; i-- {
		j.undo[i]()
	}
	if id < len(j.undo) {
		j.undo = j.undo[:id]
	}
	j.release()
}

// discard keeps every change made since the snapshot.
func (j *journal) discard(int) {
	j.release()
}

func (j *journal) release() {
	if j.open > 0 {
		j.open--
	}
	if j.open == 0 {
		j.undo = nil
	}
}

func (j *journal) len() int { return len(j.undo) }
