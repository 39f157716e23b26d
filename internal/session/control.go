package session

import (
	"go.uber.org/zap"

	"github.com/streamduck/streamduckd/internal/profile"
)

// The methods below implement dispatch.SessionControl. They run on action
// worker goroutines, so each one only enqueues a command; the session loop
// applies it between reads. A full command queue drops the request with a
// log line rather than blocking the caller.

func (s *Session) enqueue(cmd command) {
	select {
	case s.cmds <- cmd:
	case <-s.done:
	default:
		s.log.Warn("session command queue full, dropping command")
	}
}

// PushPage pushes a page onto the stack and repaints.
func (s *Session) PushPage(name string) {
	s.enqueue(func(s *Session) {
		p := s.dispatcher.Profile()
		if p == nil {
			return
		}
		if _, ok := p.PageNamed(name); !ok {
			s.log.Warn("push of unknown page", zap.String("page", name))
			return
		}
		s.pages = append(s.pages, name)
		s.renderPage(p)
	})
}

// PopPage pops back to the previous page; the bottom of the stack stays.
func (s *Session) PopPage() {
	s.enqueue(func(s *Session) {
		if len(s.pages) <= 1 {
			return
		}
		s.pages = s.pages[:len(s.pages)-1]
		if p := s.dispatcher.Profile(); p != nil {
			s.renderPage(p)
		}
	})
}

// SetPage replaces the top of the page stack.
func (s *Session) SetPage(name string) {
	s.enqueue(func(s *Session) {
		p := s.dispatcher.Profile()
		if p == nil {
			return
		}
		if _, ok := p.PageNamed(name); !ok {
			s.log.Warn("switch to unknown page", zap.String("page", name))
			return
		}
		if len(s.pages) == 0 {
			s.pages = []string{name}
		} else {
			s.pages[len(s.pages)-1] = name
		}
		s.renderPage(p)
	})
}

// SetBrightness adjusts panel brightness, clamped to 0-100.
func (s *Session) SetBrightness(percent int) {
	s.enqueue(func(s *Session) {
		if err := s.handle.SendFeature(s.model.Brightness(percent)); err != nil {
			s.log.Warn("setting brightness", zap.Error(err))
		}
	})
}

// Reload resets the session onto a freshly loaded profile: start page,
// brightness, full repaint. Called by the registry during profile swap.
func (s *Session) Reload(p *profile.Profile) {
	s.enqueue(func(s *Session) {
		s.applyProfile(p)
	})
}
