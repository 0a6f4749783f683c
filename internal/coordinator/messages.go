package coordinator

// Message is an input to the coordinator. Every message is handled by
// dispatch on the event loop.
type Message interface {
	message()
}

// VisibilityChanged reports that a viewer moved to the foreground or background.
type VisibilityChanged struct {
	Viewer  string
	Visible bool
}

// ViewerJoined reports a newly attached viewer.
type ViewerJoined struct {
	Viewer string
}

// ViewerLeft reports a detached viewer.
type ViewerLeft struct {
	Viewer string
}

// Resized reports a viewport change.
type Resized struct {
	Viewer string
	Width  int
	Height int
}

// StreamLoaded reports that the media source produced data.
type StreamLoaded struct {
	URL string
}

// StreamFailed reports that the media source errored, ended or stalled.
type StreamFailed struct {
	URL string
	Err error
}

// ResetRequested re-arms the connection monitor and reloads the stream.
type ResetRequested struct{}

// SyncRequested runs an immediate health check and feed refresh.
type SyncRequested struct{}

func (VisibilityChanged) message() {}
func (ViewerJoined) message()      {}
func (ViewerLeft) message()        {}
func (Resized) message()           {}
func (StreamLoaded) message()      {}
func (StreamFailed) message()      {}
func (ResetRequested) message()    {}
func (SyncRequested) message()     {}
