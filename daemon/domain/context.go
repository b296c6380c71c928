package domain

// Context bundles the application's configuration with the in-process event
// bus shared across the registry, router, and notification sink.
type Context struct {
	Config Config
	Hub    *EventBus
}

// NewContext builds a Context from cfg with a freshly allocated event bus.
func NewContext(cfg Config) *Context {
	return &Context{
		Config: cfg,
		Hub:    NewEventBus(256),
	}
}
