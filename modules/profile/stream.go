package profile

import (
	"github.com/dmitrymomot/trevia/handler"
	profilesvc "github.com/dmitrymomot/trevia/svc/profile"
)

// stream pushes a "profile" signal patch after every settled resolution.
// When the session ends the client is sent to the public path.
func (s *Service) stream(_ handler.Context, _ struct{}) handler.Response {
	return handler.SSE(func(sc handler.StreamContext) error {
		resolver, release := s.open(sc.Request())
		defer release()

		// Only the latest view matters to the client.
		updates := make(chan profilesvc.View, 1)
		unsubscribe := resolver.Subscribe(func(v profilesvc.View) {
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- v:
			default:
			}
		})
		defer unsubscribe()

		view, err := resolver.Refresh(sc)
		if err != nil {
			return err
		}
		for {
			if view.Profile == nil && !view.Loading {
				return sc.SSE().Redirect(s.cfg.PublicPath)
			}
			if err := sc.SendSignals(map[string]any{"profile": toView(view)}); err != nil {
				return err
			}
			select {
			case <-sc.Done():
				return nil
			case view = <-updates:
			}
		}
	})
}
