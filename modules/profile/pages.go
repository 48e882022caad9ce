package profile

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/trevia/handler"
)

const datastarScript = `<script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@main/bundles/datastar.js"></script>`

func page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!doctype html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>`+templ.EscapeString(title)+`</title>`+datastarScript+`</head><body>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func entryView() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<main>`+
			`<h1>Trevia</h1><p>Plan and keep every trip in one place.</p>`+
			`<form method="post" action="/auth/login">`+
			`<input type="email" name="email" placeholder="Email" required>`+
			`<input type="password" name="password" placeholder="Password" required>`+
			`<button type="submit">Sign in</button></form>`+
			`<form method="post" action="/auth/register">`+
			`<input type="email" name="email" placeholder="Email" required>`+
			`<input type="password" name="password" placeholder="Password" required>`+
			`<button type="submit">Create account</button></form>`+
			`</main>`)
		return err
	})
}

func homeView(v View) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<main data-init="@get('/api/profile/stream')">`+
			`<header><span class="avatar" data-text="$profile.initials">`+templ.EscapeString(v.Initials)+`</span>`+
			`<h1>Hi, <span data-text="$profile.displayName">`+templ.EscapeString(v.DisplayName)+`</span></h1></header>`+
			`<p>Where to next?</p>`+
			`<form method="post" action="/auth/logout"><button type="submit">Sign out</button></form>`+
			`</main>`)
		return err
	})
}

func (s *Service) entryPage(_ handler.Context, _ struct{}) handler.Response {
	return handler.Templ(page("Trevia", entryView()))
}

func (s *Service) homePage(ctx handler.Context, _ struct{}) handler.Response {
	resolver, release := s.open(ctx.Request())
	defer release()

	view, err := resolver.Refresh(ctx)
	if err != nil {
		return handler.Error(err)
	}
	if view.Profile == nil {
		return handler.Redirect(s.cfg.PublicPath)
	}
	return handler.Templ(page("Home · Trevia", homeView(toView(view))))
}
