package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sdsai/airqso-go/audio"
	"github.com/sdsai/airqso-go/codec"
	"github.com/sdsai/airqso-go/pkg/bytestream"
	"github.com/sdsai/airqso-go/pkg/interfaces"
	"github.com/sdsai/airqso-go/protocols/stdio"
	"github.com/sdsai/airqso-go/protocols/websocket"
	"github.com/sdsai/airqso-go/utils"
)

// Client 把一个传输层连接桥接到收发工作者：
// 收到的文本与二进制数据写入发送输入流，解码出的字节以二进制帧送回对端。
type Client struct {
	config     Config
	clientID   string
	symbolRate float64
	logger     *slog.Logger
	bpsk       *Bpsk
	input      *bytestream.Pipe
	dial       func(Config, string) (interfaces.TransportProtocol, error)

	transportMu sync.RWMutex
	transport   interfaces.TransportProtocol

	mu     sync.Mutex
	hz     int
	tx     *TransmitWorker
	rx     *ReceiveWorker
	closed bool

	closeChan chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient 创建客户端，prober 决定使用的音频后端
func NewClient(cfg Config, prober *audio.Prober, log *slog.Logger) (*Client, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	name := cfg.Modem.Codec
	if name == "" {
		name = codec.Raw.Name
	}
	cd, err := codec.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}

	hz := cfg.Modem.Frequency
	if hz <= 0 {
		hz = DefaultFrequency
	}
	symbolRate := cfg.Modem.SymbolRate
	if symbolRate <= 0 {
		symbolRate = PSK31SymbolRate
	}

	c := &Client{
		config:     cfg,
		clientID:   uuid.NewString(),
		symbolRate: symbolRate,
		logger:     log,
		input:      bytestream.NewPipe(4096),
		dial:       NewProtocol,
		hz:         hz,
		closeChan:  make(chan struct{}),
	}
	c.bpsk = NewBpsk(prober, cd, c.input, clientOutput{c}, log,
		WithExclusive(cfg.System.ExclusiveMode),
		WithChunkSize(cfg.Modem.ChunkSize),
		WithPreamble(cfg.Modem.PreambleSymbols),
		WithPostamble(cfg.Modem.PostambleSymbols),
	)
	return c, nil
}

// Connect 建立传输层连接，替换已有连接
func (c *Client) Connect(ctx context.Context) error {
	transport, err := c.dial(c.config, c.clientID)
	if err != nil {
		c.logger.Error("Failed to create transport", "error", err)
		return err
	}

	c.logger.Info("Connecting", "transport", transport.ProtocolType())
	if err := transport.Connect(ctx); err != nil {
		c.logger.Error("Failed to connect", "error", err)
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.transportMu.Lock()
	old := c.transport
	c.transport = transport
	c.transportMu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	c.logger.Info("Connected", "transport", transport.ProtocolType())
	c.notifyStatus()
	return nil
}

// Run 启动客户端主循环。websocket 断开后按指数退避重连；
// 标准输入结束时等待已排队的数据发送完毕后返回。
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("Starting client main loop")
	defer c.logger.Info("Client main loop stopped")

	if err := c.autoStart(); err != nil {
		return err
	}

	backoff := utils.NewExponentialBackoff()
	for {
		err := c.Connect(ctx)
		if err == nil {
			backoff.Reset()
			err = c.serve(ctx)
			if err == nil {
				return nil
			}
		}
		if errors.Is(err, ErrUnsupportedProtocol) {
			return err
		}
		if c.config.System.Network.Transport != "websocket" {
			if errors.Is(err, interfaces.ErrTransportClosed) {
				return c.drain(ctx)
			}
			return err
		}

		delay := backoff.NextDelay()
		c.logger.Warn("Connection lost, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-c.closeChan:
			return nil
		case <-time.After(delay):
		}
	}
}

func (c *Client) autoStart() error {
	if c.config.Modem.AutoReceive {
		if err := c.StartReceive(); err != nil {
			return err
		}
	}
	if c.config.Modem.AutoTransmit {
		if err := c.StartTransmit(); err != nil {
			return err
		}
	}
	return nil
}

// serve 处理消息直到连接断开；ctx 取消或客户端关闭时返回 nil
func (c *Client) serve(ctx context.Context) error {
	c.transportMu.RLock()
	msgs := c.transport.Receive()
	c.transportMu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping client")
			return nil
		case <-c.closeChan:
			c.logger.Info("Close signal received, stopping client")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return interfaces.ErrTransportClosed
			}
			c.handleMessage(msg)
		}
	}
}

// drain 输入结束后让发送工作者发完剩余数据
func (c *Client) drain(ctx context.Context) error {
	_ = c.input.CloseWrite()

	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx == nil {
		return nil
	}

	c.logger.Info("Input closed, waiting for transmit to finish")
	select {
	case <-tx.Done():
	case <-ctx.Done():
	case <-c.closeChan:
	}
	return nil
}

func (c *Client) handleMessage(msg interfaces.Message) {
	switch msg.Type {
	case interfaces.MsgBinary:
		if _, err := c.input.Write(msg.Payload); err != nil {
			c.logger.Warn("Failed to queue binary payload", "error", err)
		}
	case interfaces.MsgText:
		if err := c.handleText(msg.Payload); err != nil {
			c.logger.Error("Failed to handle message", "error", err)
			c.sendError(err)
		}
	default:
		c.logger.Debug("Ignoring control message", "size", len(msg.Payload))
	}
}

func (c *Client) handleText(data []byte) error {
	if len(data) == 0 {
		c.logger.Debug("Empty message received")
		return nil
	}

	var env interfaces.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Error("JSON unmarshal failed", "error", err, "raw_data", string(data))
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	c.logger.Debug("Handling message", "type", env.Type)

	switch env.Type {
	case interfaces.EnvelopeText:
		_, err := c.input.Write([]byte(env.Text))
		return err
	case interfaces.EnvelopeTransmit:
		return c.toggle(env.State, c.StartTransmit, c.StopTransmit)
	case interfaces.EnvelopeReceive:
		return c.toggle(env.State, c.StartReceive, c.StopReceive)
	case interfaces.EnvelopeFrequency:
		c.SetFrequency(env.Value)
		c.notifyStatus()
		return nil
	case interfaces.EnvelopeStatus:
		return c.sendStatus()
	case interfaces.EnvelopeClear:
		c.input.Reset()
		return nil
	case interfaces.EnvelopeError:
		c.logger.Warn("Peer reported error", "message", env.Message)
		return nil
	default:
		c.logger.Warn("Unknown message type received", "type", env.Type)
		return nil
	}
}

func (c *Client) toggle(state string, start, stop func() error) error {
	var err error
	switch state {
	case interfaces.StateStart:
		err = start()
	case interfaces.StateStop:
		err = stop()
	default:
		return fmt.Errorf("unknown state: %q", state)
	}
	c.notifyStatus()
	return err
}

// StartTransmit 开始发送；已在发送时先停止旧的工作者
func (c *Client) StartTransmit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("client closed")
	}
	if c.tx != nil {
		if err := c.stopWorker(c.tx); err != nil {
			return err
		}
		c.tx = nil
	}

	w, err := c.bpsk.StartTransmitRate(c.hz, c.symbolRate)
	if err != nil {
		c.logger.Error("Failed to start transmit", "error", err)
		return err
	}
	c.tx = w
	c.watch(w, func() bool {
		if c.tx != w {
			return false
		}
		c.tx = nil
		return true
	})
	return nil
}

// StopTransmit 停止发送并等待工作者退出
func (c *Client) StopTransmit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return nil
	}
	err := c.stopWorker(c.tx)
	c.tx = nil
	return err
}

// StartReceive 开始接收；已在接收时先停止旧的工作者
func (c *Client) StartReceive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("client closed")
	}
	if c.rx != nil {
		if err := c.stopWorker(c.rx); err != nil {
			return err
		}
		c.rx = nil
	}

	w, err := c.bpsk.StartReceiveRate(c.hz, c.symbolRate)
	if err != nil {
		c.logger.Error("Failed to start receive", "error", err)
		return err
	}
	c.rx = w
	c.watch(w, func() bool {
		if c.rx != w {
			return false
		}
		c.rx = nil
		return true
	})
	return nil
}

// StopReceive 停止接收并等待工作者退出
func (c *Client) StopReceive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rx == nil {
		return nil
	}
	err := c.stopWorker(c.rx)
	c.rx = nil
	return err
}

// SetFrequency 设置载波频率，下一次开始收发时生效。无效值回退到默认频率。
func (c *Client) SetFrequency(hz int) {
	if hz <= 0 {
		c.logger.Warn("Invalid frequency, using default", "hz", hz, "default", DefaultFrequency)
		hz = DefaultFrequency
	}
	c.mu.Lock()
	c.hz = hz
	c.mu.Unlock()
	c.logger.Info("Frequency changed", "hz", hz)
}

// Status 返回当前状态
func (c *Client) Status() interfaces.Status {
	c.mu.Lock()
	st := interfaces.Status{
		Frequency:    c.hz,
		SymbolRate:   c.symbolRate,
		Transmitting: c.tx != nil,
		Receiving:    c.rx != nil,
		Transport:    c.config.System.Network.Transport,
	}
	c.mu.Unlock()

	c.transportMu.RLock()
	st.Connected = c.transport != nil
	c.transportMu.RUnlock()
	return st
}

// Close 停止收发工作者并关闭连接
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		c.logger.Info("Closing client")
		close(c.closeChan)

		c.mu.Lock()
		c.closed = true
		tx, rx := c.tx, c.rx
		c.tx, c.rx = nil, nil
		if tx != nil {
			errs = append(errs, c.stopWorker(tx))
		}
		if rx != nil {
			errs = append(errs, c.stopWorker(rx))
		}
		c.mu.Unlock()

		_ = c.input.CloseWithError(io.ErrClosedPipe)

		c.transportMu.Lock()
		if c.transport != nil {
			errs = append(errs, c.transport.Close())
			c.transport = nil
		}
		c.transportMu.Unlock()

		c.wg.Wait()
		c.logger.Info("Client closed")
	})
	return errors.Join(errs...)
}

func (c *Client) stopWorker(w Worker) error {
	ctx := context.Background()
	if c.config.Modem.StopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Modem.StopTimeout)
		defer cancel()
	}
	return w.Stop(ctx)
}

// watch 在工作者自行退出（输入结束或设备出错）时清理引用并上报状态。
// 必须持有 c.mu 调用。
func (c *Client) watch(w Worker, clear func() bool) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-w.Done():
		case <-c.closeChan:
			return
		}

		c.mu.Lock()
		current := clear()
		c.mu.Unlock()
		if current {
			c.logger.Info("Worker finished", "session", w.Session())
			c.notifyStatus()
		}
	}()
}

func (c *Client) send(data []byte, msgType interfaces.MessageType) error {
	c.transportMu.RLock()
	defer c.transportMu.RUnlock()
	if c.transport == nil {
		return fmt.Errorf("not connected: %w", interfaces.ErrConnectionFailed)
	}
	return c.transport.Send(data, msgType)
}

func (c *Client) sendJSON(env interfaces.Envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.send(msg, interfaces.MsgText)
}

func (c *Client) sendStatus() error {
	st := c.Status()
	return c.sendJSON(interfaces.Envelope{Type: interfaces.EnvelopeStatus, Status: &st})
}

func (c *Client) notifyStatus() {
	if err := c.sendStatus(); err != nil {
		c.logger.Debug("Status not sent", "error", err)
	}
}

func (c *Client) sendError(cause error) {
	if err := c.sendJSON(interfaces.Envelope{Type: interfaces.EnvelopeError, Message: cause.Error()}); err != nil {
		c.logger.Debug("Error not sent", "error", err)
	}
}

// clientOutput 接收工作者的输出端。连接断开期间解码结果直接丢弃，
// 这样接收会话可以跨越重连继续。
type clientOutput struct{ c *Client }

func (o clientOutput) Write(p []byte) (int, error) {
	if err := o.c.send(p, interfaces.MsgBinary); err != nil {
		o.c.logger.Debug("Dropped decoded bytes", "size", len(p), "error", err)
	}
	return len(p), nil
}

// NewProtocol 根据配置创建对应的传输层实例
func NewProtocol(config Config, clientID string) (interfaces.TransportProtocol, error) {
	switch config.System.Network.Transport {
	case "websocket":
		if config.System.Network.Websocket == nil {
			return nil, errors.New("websocket config missing")
		}

		var wsConfig websocket.Config
		wsConfig.Server.URL = config.System.Network.Websocket.URL
		wsConfig.Server.ProtocolVersion = 1
		wsConfig.Auth.AccessToken = config.System.Network.Websocket.AccessToken
		wsConfig.ClientID = clientID
		return websocket.NewWebSocketProtocol(wsConfig)
	case "", "stdio":
		return stdio.NewTransport(os.Stdin, os.Stdout), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, config.System.Network.Transport)
	}
}
