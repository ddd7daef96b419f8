// Package stdio 终端传输层：输入的行作为待发送文本，斜杠命令转换为控制消息，
// 解码出的字节收到即打印
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sdsai/airqso-go/pkg/interfaces"
)

var _ interfaces.TransportProtocol = (*Transport)(nil)

type Transport struct {
	in  io.Reader
	out io.Writer

	msgChan     chan interfaces.Message
	closeChan   chan struct{}
	connectOnce sync.Once
	closeOnce   sync.Once

	mu sync.Mutex // 保护 out
}

func NewTransport(in io.Reader, out io.Writer) *Transport {
	return &Transport{
		in:        in,
		out:       out,
		msgChan:   make(chan interfaces.Message, 100),
		closeChan: make(chan struct{}),
	}
}

// Connect 开始逐行读取。输入只能消费一次，重复调用无效
func (t *Transport) Connect(context.Context) error {
	t.connectOnce.Do(func() {
		go t.readLines()
	})
	return nil
}

func (t *Transport) readLines() {
	defer close(t.msgChan)
	scanner := bufio.NewScanner(t.in)
	for scanner.Scan() {
		env, err := ParseLine(scanner.Text())
		if err != nil {
			t.printf("[error] %v\n", err)
			continue
		}
		payload, err := json.Marshal(env)
		if err != nil {
			continue
		}
		select {
		case t.msgChan <- interfaces.Message{Payload: payload, Type: interfaces.MsgText}:
		case <-t.closeChan:
			return
		}
	}
}

// ParseLine 把一行输入转换为消息。以斜杠开头的是命令，
// 其他内容连同换行符作为待发送文本
func ParseLine(line string) (interfaces.Envelope, error) {
	if !strings.HasPrefix(line, "/") {
		return interfaces.Envelope{Type: interfaces.EnvelopeText, Text: line + "\n"}, nil
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/tx", "/rx":
		typ := interfaces.EnvelopeTransmit
		if cmd == "/rx" {
			typ = interfaces.EnvelopeReceive
		}
		if len(args) != 1 {
			return interfaces.Envelope{}, fmt.Errorf("usage: %s on|off", cmd)
		}
		switch args[0] {
		case "on", "start":
			return interfaces.Envelope{Type: typ, State: interfaces.StateStart}, nil
		case "off", "stop":
			return interfaces.Envelope{Type: typ, State: interfaces.StateStop}, nil
		}
		return interfaces.Envelope{}, fmt.Errorf("usage: %s on|off", cmd)
	case "/hz":
		if len(args) != 1 {
			return interfaces.Envelope{}, fmt.Errorf("usage: /hz <frequency>")
		}
		hz, err := strconv.Atoi(args[0])
		if err != nil {
			return interfaces.Envelope{}, fmt.Errorf("invalid frequency %q: %w", args[0], err)
		}
		return interfaces.Envelope{Type: interfaces.EnvelopeFrequency, Value: hz}, nil
	case "/status":
		return interfaces.Envelope{Type: interfaces.EnvelopeStatus}, nil
	case "/clear":
		return interfaces.Envelope{Type: interfaces.EnvelopeClear}, nil
	}
	return interfaces.Envelope{}, fmt.Errorf("unknown command %q", cmd)
}

// Send 原样打印解码出的字节，每条消息渲染为一行
func (t *Transport) Send(data []byte, msgType interfaces.MessageType) error {
	select {
	case <-t.closeChan:
		return interfaces.ErrTransportClosed
	default:
	}

	if msgType == interfaces.MsgBinary {
		t.mu.Lock()
		defer t.mu.Unlock()
		_, err := t.out.Write(data)
		return err
	}

	var env interfaces.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return t.printf("%s\n", data)
	}
	switch env.Type {
	case interfaces.EnvelopeError:
		return t.printf("[error] %s\n", env.Message)
	case interfaces.EnvelopeStatus:
		if env.Status == nil {
			return nil
		}
		return t.printf("[status] %d Hz, %.2f baud, tx %s, rx %s\n",
			env.Status.Frequency, env.Status.SymbolRate,
			onOff(env.Status.Transmitting), onOff(env.Status.Receiving))
	default:
		return t.printf("%s\n", data)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (t *Transport) printf(format string, args ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.out, format, args...)
	return err
}

func (t *Transport) Receive() <-chan interfaces.Message {
	return t.msgChan
}

func (t *Transport) ProtocolType() string { return "stdio" }

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closeChan)
	})
	return nil
}
