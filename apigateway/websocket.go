package apigateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	gateway "github.com/legalqa/gateway"
)

// ============================================================================
// WebSocket 处理
// ============================================================================

const (
	wsMaxMessageSize = 64 << 10
	wsWriteTimeout   = 10 * time.Second
)

// 帧类型
const (
	FrameAnswer = "answer"
	FrameError  = "error"
)

// Frame 服务端下发的帧
type Frame struct {
	Type   string       `json:"type"`
	Answer *string      `json:"answer,omitempty"`
	Status int          `json:"status,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Error  gateway.Kind `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket 每个文本帧是一个 ChatRequest，按顺序逐个回答
func (g *Gateway) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket 升级失败")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	ctx := c.Request.Context()
	clientIP := c.ClientIP()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("WebSocket 连接异常关闭")
			}
			return
		}

		var frame Frame
		var req gateway.ChatRequest
		if !g.allowFrame(ctx, clientIP) {
			frame = errorFrame(gateway.RateLimited())
		} else if err := json.Unmarshal(message, &req); err != nil {
			frame = errorFrame(gateway.InvalidInput("Invalid message: " + err.Error()))
		} else if resp, err := g.service.Chat(ctx, req); err != nil {
			frame = errorFrame(gateway.AsError(err))
		} else {
			frame = Frame{Type: FrameAnswer, Answer: &resp.Answer}
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			log.Warn().Err(err).Msg("WebSocket 写入失败")
			return
		}
	}
}

// allowFrame 每一帧与 HTTP 请求共用同一个限流额度，限流器出错时放行
func (g *Gateway) allowFrame(ctx context.Context, clientIP string) bool {
	if g.limiter == nil {
		return true
	}
	ok, err := g.limiter.Allow(ctx, clientIP)
	if err != nil {
		log.Warn().Err(err).Msg("限流器错误，放行 WebSocket 消息")
		return true
	}
	return ok
}

func errorFrame(err *gateway.Error) Frame {
	return Frame{
		Type:   FrameError,
		Status: err.Status,
		Detail: err.Detail,
		Error:  err.Kind,
	}
}
