package auth

import "time"

type Config struct {
	ConfirmationSecret string        `env:"AUTH_CONFIRMATION_SECRET,required"`
	ConfirmationTTL    time.Duration `env:"AUTH_CONFIRMATION_TTL" envDefault:"24h"`
	// RequireConfirmedEmail rejects sign-in until the confirmation link was used.
	RequireConfirmedEmail bool          `env:"AUTH_REQUIRE_CONFIRMED_EMAIL" envDefault:"false"`
	SignInBurst           int           `env:"AUTH_SIGNIN_BURST" envDefault:"5"`
	SignInRefill          time.Duration `env:"AUTH_SIGNIN_REFILL" envDefault:"1m"`
	BcryptCost            int           `env:"AUTH_BCRYPT_COST" envDefault:"10"`
}
