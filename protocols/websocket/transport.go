// protocols/websocket/transport.go
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sdsai/airqso-go/pkg/interfaces"
)

var _ interfaces.TransportProtocol = (*WSProtocol)(nil)

// WSProtocol 一次websocket连接。断开后 Receive 通道关闭，重连需要创建新实例。
type WSProtocol struct {
	conn      *websocket.Conn
	config    Config
	msgChan   chan interfaces.Message
	closeChan chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// Config 定义websocket特有的配置
type Config struct {
	Server struct {
		URL             string
		ProtocolVersion int
	}
	Auth struct {
		AccessToken string
	}
	ClientID string
}

func NewWebSocketProtocol(config Config) (*WSProtocol, error) {
	if config.Server.URL == "" {
		return nil, fmt.Errorf("%w: empty websocket url", interfaces.ErrConnectionFailed)
	}
	return &WSProtocol{
		config:    config,
		msgChan:   make(chan interfaces.Message, 100),
		closeChan: make(chan struct{}),
	}, nil
}

func (p *WSProtocol) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	headers := http.Header{}
	if p.config.Auth.AccessToken != "" {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s", p.config.Auth.AccessToken))
	}
	headers.Set("Protocol-Version", fmt.Sprintf("%d", p.config.Server.ProtocolVersion))
	headers.Set("Client-Id", p.config.ClientID)

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, p.config.Server.URL, headers)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	p.conn = conn

	go p.readPump(conn)
	return nil
}

func (p *WSProtocol) readPump(conn *websocket.Conn) {
	defer close(p.msgChan)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case p.msgChan <- interfaces.Message{
			Payload: data,
			Type:    convertMsgType(msgType),
		}:
		case <-p.closeChan:
			return
		}
	}
}

func convertMsgType(wsType int) interfaces.MessageType {
	switch wsType {
	case websocket.TextMessage:
		return interfaces.MsgText
	case websocket.BinaryMessage:
		return interfaces.MsgBinary
	default:
		return interfaces.MsgControl
	}
}

func (p *WSProtocol) Send(data []byte, msgType interfaces.MessageType) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return interfaces.ErrConnectionFailed
	}
	select {
	case <-p.closeChan:
		return interfaces.ErrTransportClosed
	default:
	}

	wsType := websocket.TextMessage
	if msgType == interfaces.MsgBinary {
		wsType = websocket.BinaryMessage
	}
	return p.conn.WriteMessage(wsType, data)
}

func (p *WSProtocol) Receive() <-chan interfaces.Message {
	return p.msgChan
}

func (p *WSProtocol) ProtocolType() string { return "websocket" }

func (p *WSProtocol) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closeChan)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.conn != nil {
			err = p.conn.Close()
		}
	})
	return err
}
