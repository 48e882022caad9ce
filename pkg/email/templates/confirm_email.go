package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// ConfirmEmailData feeds the sign-up confirmation email.
type ConfirmEmailData struct {
	Name       string
	ConfirmURL string
}

// ConfirmEmail links the recipient to the email confirmation callback.
func ConfirmEmail(data ConfirmEmailData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		name := data.Name
		if name == "" {
			name = "traveller"
		}
		href := string(templ.URL(data.ConfirmURL))
		_, err := io.WriteString(w, `<!doctype html><html><body style="font-family:sans-serif">`+
			`<p>Hi `+templ.EscapeString(name)+`,</p>`+
			`<p>Confirm your email address to finish setting up your account.</p>`+
			`<p><a href="`+templ.EscapeString(href)+`">Confirm email</a></p>`+
			`<p>If you did not sign up, ignore this message.</p>`+
			`</body></html>`)
		return err
	})
}
