// Package visibility derives the dashboard's foreground/background state
// from the viewers attached to it.
package visibility

// Observer tracks viewers and the visibility each one reports. It is used
// only from the event loop.
type Observer struct {
	suspendUnwatched bool
	viewers          map[string]bool
	everJoined       bool
	visible          bool
}

// NewObserver starts visible. With suspendUnwatched the departure of the
// last viewer counts as hidden.
func NewObserver(suspendUnwatched bool) *Observer {
	return &Observer{suspendUnwatched: suspendUnwatched, viewers: map[string]bool{}, visible: true}
}

// Visible returns the aggregate state.
func (o *Observer) Visible() bool {
	return o.visible
}

// Viewers returns how many viewers are attached.
func (o *Observer) Viewers() int {
	return len(o.viewers)
}

// Join attaches a viewer that is initially in the foreground.
func (o *Observer) Join(id string) (visible bool, changed bool) {
	o.everJoined = true
	o.viewers[id] = true
	return o.update()
}

// Leave detaches a viewer.
func (o *Observer) Leave(id string) (visible bool, changed bool) {
	delete(o.viewers, id)
	return o.update()
}

// Report records a foreground/background change of one viewer. Unknown
// viewers are attached first.
func (o *Observer) Report(id string, visible bool) (bool, bool) {
	o.everJoined = true
	o.viewers[id] = visible
	return o.update()
}

func (o *Observer) update() (bool, bool) {
	next := o.aggregate()
	changed := next != o.visible
	o.visible = next
	return next, changed
}

func (o *Observer) aggregate() bool {
	for _, v := range o.viewers {
		if v {
			return true
		}
	}
	if len(o.viewers) == 0 {
		return !o.everJoined || !o.suspendUnwatched
	}
	return false
}
