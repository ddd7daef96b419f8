package interfaces

// 文本帧中的JSON信封类型
const (
	EnvelopeText      = "text"   // 待发送的文本
	EnvelopeTransmit  = "tx"     // 开关发送
	EnvelopeReceive   = "rx"     // 开关接收
	EnvelopeFrequency = "hz"     // 设置载波频率
	EnvelopeStatus    = "status" // 查询或上报状态
	EnvelopeClear     = "clear"  // 丢弃尚未发送的输入
	EnvelopeError     = "error"
)

const (
	StateStart = "start"
	StateStop  = "stop"
)

// Envelope 客户端与对端之间的文本消息
type Envelope struct {
	Type    string  `json:"type"`
	Text    string  `json:"text,omitempty"`
	State   string  `json:"state,omitempty"`
	Value   int     `json:"value,omitempty"`
	Message string  `json:"message,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Status 收发状态快照
type Status struct {
	Frequency    int     `json:"frequency"`
	SymbolRate   float64 `json:"symbol_rate"`
	Transmitting bool    `json:"transmitting"`
	Receiving    bool    `json:"receiving"`
	Transport    string  `json:"transport"`
	Connected    bool    `json:"connected"`
}
