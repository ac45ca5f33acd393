package controllers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/saaskit/internal/pkg/realtime"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

const (
	wsUserIDKey       = "ws_user_id"
	wsDataSourceIDKey = "ws_data_source_id"
)

// HandleWebSocketUpgrade lets only upgrade requests through and pins the user id
// for the socket handler.
func HandleWebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(wsUserIDKey, usercontext.GetUserID(c))
	return c.Next()
}

// HandleChatSocketAuth checks that the chat's data source belongs to the user before upgrading.
func HandleChatSocketAuth(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if _, err := services.Get().Repos.DataSource.GetByIDForUser(id, usercontext.GetUserID(c)); err != nil {
		return err
	}
	c.Locals(wsDataSourceIDKey, id)
	return c.Next()
}

type chatInbound struct {
	MsgID uint `json:"msg_id"`
}

// readUntilClosed hands every inbound frame to fn and cancels once the client goes away.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc, fn func([]byte)) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if fn != nil {
			fn(data)
		}
	}
}

// HandleChatSocket relays chat_message events of one data source. Inbound
// {"msg_id": N} frames are re-published to the group so every tab picks them up.
func HandleChatSocket(conn *websocket.Conn) {
	dsID, _ := conn.Locals(wsDataSourceIDKey).(uint)
	reg := services.Get()
	group := realtime.ChatGroup(dsID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := reg.Broker.Subscribe(ctx, group)
	if err != nil {
		log.Errorf("[Realtime] %v", err)
		return
	}
	defer sub.Close()

	go readUntilClosed(conn, cancel, func(data []byte) {
		var in chatInbound
		if err := json.Unmarshal(data, &in); err != nil || in.MsgID == 0 {
			return
		}
		ev := realtime.Event{Type: realtime.EventChatMessage, MsgID: in.MsgID}
		if err := reg.Broker.Publish(ctx, group, ev); err != nil {
			log.Warnf("[Realtime] re-publish on %s: %v", group, err)
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Type != realtime.EventChatMessage {
				continue
			}
			msg, err := reg.Dashboard.Message(dsID, ev.MsgID)
			if err != nil {
				log.Warnf("[Realtime] message %d of source %d: %v", ev.MsgID, dsID, err)
				continue
			}
			html, err := views.RenderString(ctx, views.ChatMessage(*msg))
			if err != nil {
				log.Errorf("[Realtime] render message %d: %v", msg.ID, err)
				continue
			}
			if err := conn.WriteJSON(fiber.Map{"message": html}); err != nil {
				return
			}
		}
	}
}

// HandleNotificationSocket forwards send_notification events to the user's browser.
func HandleNotificationSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals(wsUserIDKey).(uint)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := services.Get().Broker.Subscribe(ctx, realtime.NotificationGroup(userID))
	if err != nil {
		log.Errorf("[Realtime] %v", err)
		return
	}
	defer sub.Close()

	go readUntilClosed(conn, cancel, nil)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Type != realtime.EventSendNotification {
				continue
			}
			if err := conn.WriteJSON(fiber.Map{"type": ev.Type, "message": ev.Message}); err != nil {
				return
			}
		}
	}
}
