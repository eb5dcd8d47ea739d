package notify

// SetClipboard replaces the system clipboard for the duration of a test.
func SetClipboard(available bool, write func(string) error) (restore func()) {
	prevAvailable, prevWrite := clipboardAvailable, writeClipboard
	clipboardAvailable = func() bool { return available }
	writeClipboard = write
	return func() {
		clipboardAvailable, writeClipboard = prevAvailable, prevWrite
	}
}
