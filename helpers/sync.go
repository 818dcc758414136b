package helpers

// IsClosed reports whether ch is closed, without blocking.
// Only for channels that are never sent to.
func IsClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
