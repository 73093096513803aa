// Package scroll decides when a live-growing message viewport follows its
// bottom edge and when it defers to the user's own scrolling.
package scroll

// scrollJitter is the smallest position change treated as a deliberate
// scroll rather than layout noise.
const scrollJitter = 10

// Viewport is the observed geometry of the scrollable message area, in
// whatever unit the presentation layer measures (pixels, rows).
type Viewport struct {
	// Top is the current scroll offset from the content start.
	Top int
	// ContentHeight is the full height of the message list.
	ContentHeight int
	// ViewHeight is the visible window height.
	ViewHeight int
}

// Controller tracks three signals: scroll position, content growth
// (streaming replies change height without a new message) and message count.
// While the user stays near the bottom it keeps the viewport pinned there;
// once the user scrolls away it stops moving the viewport and raises the
// new-message indicator instead.
type Controller struct {
	bottomThreshold int

	vp           Viewport
	userScrolled bool
	pending      bool
	lastTop      int
	lastCount    int
}

func NewController(bottomThreshold int) *Controller {
	return &Controller{bottomThreshold: bottomThreshold}
}

// SetViewport seeds the geometry before the first observation.
func (c *Controller) SetViewport(vp Viewport) {
	c.vp = vp
	c.lastTop = vp.Top
}

func (c *Controller) bottomTop() int {
	top := c.vp.ContentHeight - c.vp.ViewHeight
	if top < 0 {
		top = 0
	}
	return top
}

// NearBottom reports whether the viewport sits within the bottom threshold.
func (c *Controller) NearBottom() bool {
	return c.vp.ContentHeight-c.vp.Top-c.vp.ViewHeight < c.bottomThreshold
}

// UserScrolledAway reports whether auto-scroll is currently suspended.
func (c *Controller) UserScrolledAway() bool {
	return c.userScrolled
}

// PendingNewMessage reports whether the new-message affordance should show.
func (c *Controller) PendingNewMessage() bool {
	return c.pending
}

// ObserveUserInteraction marks a pointer/wheel/touch gesture. The flag is
// raised before the resulting position is known, so an auto-scroll cannot
// fire in the middle of the gesture and fight it.
func (c *Controller) ObserveUserInteraction() {
	c.userScrolled = true
}

// ObserveScroll records a new scroll position. A deliberate move suspends
// auto-scroll; a deliberate return to the bottom re-enables it and clears
// the indicator.
func (c *Controller) ObserveScroll(top int) {
	c.vp.Top = top

	moved := abs(top - c.lastTop)
	if moved > scrollJitter {
		c.userScrolled = true
		if c.NearBottom() {
			c.userScrolled = false
			c.pending = false
		}
	}

	c.lastTop = top
}

// ObserveContentGrowth records a content height change, as produced by a
// streaming reply growing in place. If the user has not scrolled away the
// returned target keeps the bottom pinned; otherwise no scroll is emitted.
func (c *Controller) ObserveContentGrowth(contentHeight int) (target int, ok bool) {
	c.vp.ContentHeight = contentHeight

	if c.userScrolled {
		return 0, false
	}

	target = c.bottomTop()
	c.vp.Top = target
	c.lastTop = target
	return target, true
}

// ObserveNewMessage records a message-count change. The first message always
// scrolls into view; afterwards, a viewport away from the bottom gets the
// indicator and stays where it is.
func (c *Controller) ObserveNewMessage(count, contentHeight int) (target int, ok bool) {
	c.vp.ContentHeight = contentHeight

	if count <= c.lastCount {
		return 0, false
	}
	c.lastCount = count

	if count == 1 {
		c.userScrolled = false
		target = c.bottomTop()
		c.vp.Top = target
		c.lastTop = target
		return target, true
	}

	if !c.NearBottom() {
		c.pending = true
		return 0, false
	}

	if c.userScrolled {
		return 0, false
	}

	target = c.bottomTop()
	c.vp.Top = target
	c.lastTop = target
	return target, true
}

// ActivateIndicator consumes the new-message affordance: one explicit scroll
// to the bottom and auto-scroll resumes.
func (c *Controller) ActivateIndicator() (target int) {
	c.userScrolled = false
	c.pending = false

	target = c.bottomTop()
	c.vp.Top = target
	c.lastTop = target
	return target
}

// Reset restores the initial state, as on conversation clear.
func (c *Controller) Reset() {
	c.userScrolled = false
	c.pending = false
	c.lastCount = 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
