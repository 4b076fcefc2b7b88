package client

import (
	"context"
	"time"

	"github.com/vango-dev/collabcode/pkg/protocol"
)

// dispatch turns one inbound frame into events. It runs on the read
// goroutine.
func (s *Session) dispatch(msg protocol.Message) {
	s.mu.Lock()
	localID, rec, renderer := s.localID, s.rec, s.renderer
	s.mu.Unlock()

	if r, ok := msg.(protocol.Relayed); ok && localID != "" && r.From().SenderID == localID {
		return
	}

	switch m := msg.(type) {
	case *protocol.Welcome:
		s.mu.Lock()
		s.localID = m.SenderID
		s.mu.Unlock()
		s.logger.Info("joined relay", "id", m.SenderID)
		s.handler.HandleEvent(Ready{ID: m.SenderID, Name: s.Name()})

	case *protocol.Cursor:
		if renderer != nil {
			renderer.Cursor(m.SenderID, m.Username, m.Position)
		}
		s.handler.HandleEvent(CursorMoved{SenderID: m.SenderID, Name: m.Username, Position: m.Position})

	case *protocol.Edit:
		if rec != nil {
			if err := rec.ApplyRemote(context.Background(), m.Delta()); err != nil {
				s.logger.Warn("apply remote edit", "sender_id", m.SenderID, "error", err)
			}
		}
		s.handler.HandleEvent(Edited{SenderID: m.SenderID, Name: m.Username, Delta: m.Delta()})

	case *protocol.Chat:
		s.handler.HandleEvent(Chatted{
			SenderID:  m.SenderID,
			Name:      m.Username,
			Text:      m.Text,
			MessageID: m.MessageID,
			Time:      time.UnixMilli(m.Timestamp),
		})

	case *protocol.Reaction:
		s.handler.HandleEvent(Reacted{
			SenderID:  m.SenderID,
			Name:      m.Username,
			MessageID: m.MessageID,
			Reaction:  m.Reaction,
		})

	case *protocol.UserJoined:
		s.handler.HandleEvent(Joined{SenderID: m.SenderID, Name: m.Username})

	case *protocol.UserLeft:
		if renderer != nil {
			renderer.Leave(m.SenderID)
		}
		s.handler.HandleEvent(Left{SenderID: m.SenderID, Name: m.Username})

	case *protocol.UserCount:
		s.handler.HandleEvent(CountChanged{Count: m.Count})

	case *protocol.Roster:
		for _, ev := range s.applyRoster(m.Users, localID) {
			s.handler.HandleEvent(ev)
		}

	case *protocol.Error:
		s.logger.Warn("relay refused frame", "message", m.Message)
		s.handler.HandleEvent(ServerError{Message: m.Message})

	default:
		s.logger.Debug("ignoring frame", "type", msg.Type())
	}
}

// applyRoster stores users and returns a Renamed event for every known
// remote participant whose name changed.
func (s *Session) applyRoster(users map[string]string, localID string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []Event
	for id, name := range users {
		if id == localID {
			continue
		}
		if old, ok := s.roster[id]; ok && old != name {
			events = append(events, Renamed{SenderID: id, OldName: old, Name: name})
		}
	}
	s.roster = users
	return events
}
