package browser

import "time"

// Engine selects the Playwright browser type.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebKit   Engine = "webkit"
)

// Options configures every session the launcher creates.
type Options struct {
	// Engine is the browser to launch.
	Engine Engine `yaml:"engine" json:"engine"`

	// Headless controls whether the browser runs without a visible window.
	Headless bool `yaml:"headless" json:"headless"`

	// Viewport sets the initial viewport size.
	Viewport Viewport `yaml:"viewport" json:"viewport"`

	// Timeout is the page default for operations without their own bound.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// UserAgent overrides the browser user agent when set.
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// SkipInstall skips downloading drivers and browsers on Initialize.
	SkipInstall bool `yaml:"skip_install" json:"skip_install"`
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Default values for launcher and extractor operations.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultIdleWait       = 5 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxSessions    = 2
)

// DefaultOptions returns headless Chromium at the default viewport.
func DefaultOptions() Options {
	return Options{
		Engine:   EngineChromium,
		Headless: true,
		Viewport: Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		Timeout:  DefaultTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Engine == "" {
		o.Engine = EngineChromium
	}
	if o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
