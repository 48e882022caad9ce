package account

// Config holds the paths the account routes redirect to.
type Config struct {
	// BaseURL is the public origin used to build confirmation links.
	BaseURL     string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	PublicPath  string `env:"GUARD_PUBLIC_PATH" envDefault:"/"`
	LandingPath string `env:"GUARD_LANDING_PATH" envDefault:"/dashboard/home"`
}

// CallbackURL is where confirmation links point.
func (c Config) CallbackURL() string {
	return c.BaseURL + "/auth/callback"
}
