package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lmendes/licitahub/internal/auth"
	"github.com/lmendes/licitahub/internal/chat"
)

func (s *Server) handleOpenLobby(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	room, err := s.chat.OpenLobby(c.Request().Context(), p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, room)
}

func (s *Server) handleOpenSupportRoom(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}

	memberID := p.ID
	if v := c.QueryParam("member_id"); v != "" {
		id, err := pathIDValue(v)
		if err != nil {
			return err
		}
		memberID = id
	}

	room, err := s.chat.OpenSupportRoom(c.Request().Context(), p, memberID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, room)
}

func (s *Server) handleOpenOpportunityRoom(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	oppID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	room, err := s.chat.OpenOpportunityRoom(c.Request().Context(), p, oppID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, room)
}

func (s *Server) handleChatHistory(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	roomID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	limit := intQuery(c, "limit", 100)

	msgs, err := s.chat.History(c.Request().Context(), p, roomID, limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

// handleSendChatMessage accepts multipart (body + optional file) or a plain
// JSON body.
func (s *Server) handleSendChatMessage(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	roomID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var body string
	var att *chat.Attachment

	if file, ferr := c.FormFile("file"); ferr == nil {
		src, err := file.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
		}
		att = &chat.Attachment{
			Name:        file.Filename,
			ContentType: file.Header.Get("Content-Type"),
			Data:        data,
		}
		body = c.FormValue("body")
	} else {
		var req struct {
			Body string `json:"body"`
		}
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
		}
		body = req.Body
	}

	m, err := s.chat.Send(c.Request().Context(), p, roomID, body, att)
	if err != nil {
		return mapError(err)
	}

	s.typing.Stop(roomID.String(), p.ID.String())
	return c.JSON(http.StatusCreated, m)
}

func (s *Server) handleDeleteChatMessage(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	msgID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.chat.Delete(c.Request().Context(), p, msgID); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	roomID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.chat.MarkRead(c.Request().Context(), p, roomID); err != nil {
		return mapError(err)
	}
	if err := s.notifier.ClearByReference(c.Request().Context(), p.ID, roomID); err != nil {
		s.log.Warn().Err(err).Msg("notification clear failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUnreadCount(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	roomID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	n, err := s.chat.Unread(c.Request().Context(), p, roomID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

// handleTyping registers a keystroke; expiry is automatic after the typing
// window.
func (s *Server) handleTyping(c echo.Context) error {
	p, err := auth.ProfileFromContext(c)
	if err != nil {
		return mapError(err)
	}
	roomID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	s.typing.Touch(roomID.String(), p.ID.String())
	return c.NoContent(http.StatusNoContent)
}
