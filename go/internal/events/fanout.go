package events

// Publisher receives every broadcast event.
type Publisher interface {
	Publish(ev *Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev *Event)

func (f PublisherFunc) Publish(ev *Event) { f(ev) }

// Fanout forwards each event to every sink in order.
type Fanout []Publisher

func (f Fanout) Publish(ev *Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ev)
		}
	}
}
